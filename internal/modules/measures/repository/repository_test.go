package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"meteo-server/internal/migrate"
	"meteo-server/internal/modules/measures/types"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Every new connection to ":memory:" is a fresh database.
	db.SetMaxOpenConns(1)
	if err := migrate.Run(context.Background(), db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			t.Fatalf("close db: %v", closeErr)
		}
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := db.Close(); closeErr != nil {
			t.Errorf("close db: %v", closeErr)
		}
	})
	return db
}

// fixedClock returns the given times in order, then keeps returning the last one.
func fixedClock(times ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		t := times[i]
		if i < len(times)-1 {
			i++
		}
		return t
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func mustInsert(t *testing.T, repo MeasureRepository, mt types.MeasureType, unit types.MeasureUnit, value string) types.Measure {
	t.Helper()
	m, err := repo.Insert(context.Background(), types.Measure{Type: mt, Unit: unit, Value: dec(value)})
	if err != nil {
		t.Fatalf("Insert(%s, %s): %v", mt, value, err)
	}
	return m
}

var base = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func TestNewRepository(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	if repo == nil {
		t.Fatal("NewRepository returned nil")
	}
}

func TestInsert_AssignsIDAndDate(t *testing.T) {
	repo := NewRepository(setupTestDB(t), WithClock(fixedClock(base)))

	callerDate := time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC)
	got, err := repo.Insert(context.Background(), types.Measure{
		ID:          42,
		Type:        types.CO2,
		Unit:        types.PPM,
		Value:       dec("405"),
		MeasureDate: callerDate,
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if got.ID == 0 || got.ID == 42 {
		t.Errorf("ID = %d; want storage-assigned id", got.ID)
	}
	if !got.MeasureDate.Equal(base) {
		t.Errorf("MeasureDate = %v; want %v", got.MeasureDate, base)
	}
	if got.Value.StringFixed(2) != "405.00" {
		t.Errorf("Value = %s; want 405.00", got.Value.StringFixed(2))
	}
	if got.Type != types.CO2 || got.Unit != types.PPM {
		t.Errorf("Type/Unit = %s/%s; want CO2/PPM", got.Type, got.Unit)
	}

	all, err := repo.FindAllByType(context.Background(), types.CO2)
	if err != nil {
		t.Fatalf("FindAllByType: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("FindAllByType: got %d measures, want 1", len(all))
	}
	if all[0].ID != got.ID || !all[0].MeasureDate.Equal(base) || !all[0].Value.Equal(got.Value) {
		t.Errorf("stored = %+v; want %+v", all[0], got)
	}
}

func TestInsert_DefaultClockIsNow(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	before := time.Now()
	got := mustInsert(t, repo, types.Temperature, types.Celsius, "21.5")
	if got.MeasureDate.Before(before.UTC()) {
		t.Errorf("MeasureDate = %v; want at/after %v", got.MeasureDate, before)
	}
	if got.MeasureDate.Location() != time.UTC {
		t.Errorf("MeasureDate location = %v; want UTC", got.MeasureDate.Location())
	}
}

func TestInsert_DistinctIDs(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	a := mustInsert(t, repo, types.CO2, types.PPM, "400")
	b := mustInsert(t, repo, types.CO2, types.PPM, "400")
	if a.ID == b.ID {
		t.Errorf("ids = %d, %d; want distinct", a.ID, b.ID)
	}
}

func TestInsert_RoundsValue(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	got := mustInsert(t, repo, types.Temperature, types.Celsius, "21.125")
	if got.Value.StringFixed(2) != "21.13" {
		t.Errorf("Value = %s; want 21.13", got.Value.StringFixed(2))
	}
}

func TestInsert_ValueOutOfRange(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	_, err := repo.Insert(context.Background(), types.Measure{Type: types.CO2, Unit: types.PPM, Value: dec("10000")})
	if !errors.Is(err, types.ErrValueOutOfRange) {
		t.Fatalf("Insert err = %v; want ErrValueOutOfRange", err)
	}
	if errors.Is(err, ErrStorage) {
		t.Errorf("Insert err = %v; must not be ErrStorage", err)
	}
}

func TestInsert_UnknownType(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	_, err := repo.Insert(context.Background(), types.Measure{Type: "WIND", Unit: types.PPM, Value: dec("1")})
	if !errors.Is(err, types.ErrUnknownMeasureType) {
		t.Fatalf("Insert err = %v; want ErrUnknownMeasureType", err)
	}
}

func TestFindLatest_Empty(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	for _, mt := range []types.MeasureType{types.CO2, types.Temperature, types.Humidity, types.Pressure} {
		_, found, err := repo.FindLatest(context.Background(), mt)
		if err != nil {
			t.Fatalf("FindLatest(%s): %v", mt, err)
		}
		if found {
			t.Errorf("FindLatest(%s): found = true; want false", mt)
		}
	}
}

func TestFindLatest_GreatestMeasureDate(t *testing.T) {
	// 405 is inserted first (earlier date), 400 second: latest is 400.
	repo := NewRepository(setupTestDB(t), WithClock(fixedClock(base, base.Add(time.Minute))))
	mustInsert(t, repo, types.CO2, types.PPM, "405")
	second := mustInsert(t, repo, types.CO2, types.PPM, "400")

	got, found, err := repo.FindLatest(context.Background(), types.CO2)
	if err != nil {
		t.Fatalf("FindLatest: %v", err)
	}
	if !found {
		t.Fatal("FindLatest: found = false; want true")
	}
	if got.ID != second.ID || got.Value.StringFixed(2) != "400.00" {
		t.Errorf("FindLatest = id %d value %s; want id %d value 400.00", got.ID, got.Value.StringFixed(2), second.ID)
	}
}

func TestFindLatest_TieBreaksOnHighestID(t *testing.T) {
	repo := NewRepository(setupTestDB(t), WithClock(fixedClock(base)))
	mustInsert(t, repo, types.Humidity, types.Percent, "40")
	last := mustInsert(t, repo, types.Humidity, types.Percent, "45")

	got, found, err := repo.FindLatest(context.Background(), types.Humidity)
	if err != nil || !found {
		t.Fatalf("FindLatest: found=%v err=%v", found, err)
	}
	if got.ID != last.ID {
		t.Errorf("FindLatest id = %d; want %d", got.ID, last.ID)
	}
}

func TestFindLatest_IgnoresOtherTypes(t *testing.T) {
	repo := NewRepository(setupTestDB(t), WithClock(fixedClock(base, base.Add(time.Hour))))
	co2 := mustInsert(t, repo, types.CO2, types.PPM, "410")
	mustInsert(t, repo, types.Temperature, types.Celsius, "19")

	got, found, err := repo.FindLatest(context.Background(), types.CO2)
	if err != nil || !found {
		t.Fatalf("FindLatest: found=%v err=%v", found, err)
	}
	if got.ID != co2.ID {
		t.Errorf("FindLatest id = %d; want %d", got.ID, co2.ID)
	}
}

func TestFindTop_GreatestValue(t *testing.T) {
	repo := NewRepository(setupTestDB(t), WithClock(fixedClock(base, base.Add(time.Minute), base.Add(2*time.Minute))))
	mustInsert(t, repo, types.Temperature, types.Celsius, "-5.25")
	top := mustInsert(t, repo, types.Temperature, types.Celsius, "31.75")
	mustInsert(t, repo, types.Temperature, types.Celsius, "12")
	mustInsert(t, repo, types.CO2, types.PPM, "9000")

	got, found, err := repo.FindTop(context.Background(), types.Temperature)
	if err != nil || !found {
		t.Fatalf("FindTop: found=%v err=%v", found, err)
	}
	if got.ID != top.ID || got.Value.StringFixed(2) != "31.75" {
		t.Errorf("FindTop = id %d value %s; want id %d value 31.75", got.ID, got.Value.StringFixed(2), top.ID)
	}
}

func TestFindTop_NegativeValuesOnly(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	mustInsert(t, repo, types.Temperature, types.Celsius, "-12.5")
	warmest := mustInsert(t, repo, types.Temperature, types.Celsius, "-0.5")

	got, _, err := repo.FindTop(context.Background(), types.Temperature)
	if err != nil {
		t.Fatalf("FindTop: %v", err)
	}
	if got.ID != warmest.ID {
		t.Errorf("FindTop id = %d; want %d", got.ID, warmest.ID)
	}
}

func TestFindTop_TieBreaksOnLatestDate(t *testing.T) {
	repo := NewRepository(setupTestDB(t), WithClock(fixedClock(base.Add(time.Hour), base)))
	newer := mustInsert(t, repo, types.Pressure, types.HPa, "1013.25")
	mustInsert(t, repo, types.Pressure, types.HPa, "1013.25")

	got, _, err := repo.FindTop(context.Background(), types.Pressure)
	if err != nil {
		t.Fatalf("FindTop: %v", err)
	}
	if got.ID != newer.ID {
		t.Errorf("FindTop id = %d; want %d (latest measure date)", got.ID, newer.ID)
	}
}

func TestFindTop_Empty(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	mustInsert(t, repo, types.CO2, types.PPM, "400")

	_, found, err := repo.FindTop(context.Background(), types.Temperature)
	if err != nil {
		t.Fatalf("FindTop: %v", err)
	}
	if found {
		t.Error("FindTop: found = true; want false")
	}
}

func TestFindByTypeInRange(t *testing.T) {
	clock := fixedClock(
		base.Add(-time.Second),              // before range
		base,                                // == start
		base.Add(30*time.Minute),            // inside
		base.Add(time.Hour),                 // == end
		base.Add(time.Hour+time.Nanosecond), // just after
		base.Add(10*time.Minute),            // inside, other type
	)
	repo := NewRepository(setupTestDB(t), WithClock(clock))
	mustInsert(t, repo, types.CO2, types.PPM, "1")
	atStart := mustInsert(t, repo, types.CO2, types.PPM, "2")
	inside := mustInsert(t, repo, types.CO2, types.PPM, "3")
	atEnd := mustInsert(t, repo, types.CO2, types.PPM, "4")
	mustInsert(t, repo, types.CO2, types.PPM, "5")
	mustInsert(t, repo, types.Humidity, types.Percent, "6")

	got, err := repo.FindByTypeInRange(context.Background(), types.CO2, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("FindByTypeInRange: %v", err)
	}
	wantIDs := []int64{atStart.ID, inside.ID, atEnd.ID}
	if len(got) != len(wantIDs) {
		t.Fatalf("FindByTypeInRange: got %d measures, want %d", len(got), len(wantIDs))
	}
	for i, id := range wantIDs {
		if got[i].ID != id {
			t.Errorf("got[%d].ID = %d; want %d", i, got[i].ID, id)
		}
		if got[i].Type != types.CO2 {
			t.Errorf("got[%d].Type = %s; want CO2", i, got[i].Type)
		}
	}
}

func TestFindByTypeInRange_OffsetBounds(t *testing.T) {
	repo := NewRepository(setupTestDB(t), WithClock(fixedClock(base)))
	m := mustInsert(t, repo, types.CO2, types.PPM, "400")

	// 13:00+01:00 is 12:00Z.
	paris := time.FixedZone("CET", 3600)
	start := time.Date(2024, 1, 1, 13, 0, 0, 0, paris)
	got, err := repo.FindByTypeInRange(context.Background(), types.CO2, start, start)
	if err != nil {
		t.Fatalf("FindByTypeInRange: %v", err)
	}
	if len(got) != 1 || got[0].ID != m.ID {
		t.Fatalf("FindByTypeInRange = %+v; want the single measure %d", got, m.ID)
	}
}

func TestFindByTypeInRange_Empty(t *testing.T) {
	repo := NewRepository(setupTestDB(t), WithClock(fixedClock(base)))
	mustInsert(t, repo, types.CO2, types.PPM, "400")

	tests := []struct {
		name       string
		start, end time.Time
	}{
		{name: "range before data", start: base.Add(-48 * time.Hour), end: base.Add(-24 * time.Hour)},
		{name: "start after end", start: base.Add(time.Hour), end: base.Add(-time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.FindByTypeInRange(context.Background(), types.CO2, tt.start, tt.end)
			if err != nil {
				t.Fatalf("FindByTypeInRange: %v", err)
			}
			if got == nil || len(got) != 0 {
				t.Errorf("FindByTypeInRange = %#v; want empty non-nil slice", got)
			}
		})
	}
}

func TestFindAllByType(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	a := mustInsert(t, repo, types.Pressure, types.HPa, "1013.25")
	mustInsert(t, repo, types.CO2, types.PPM, "400")
	b := mustInsert(t, repo, types.Pressure, types.HPa, "1009.5")

	got, err := repo.FindAllByType(context.Background(), types.Pressure)
	if err != nil {
		t.Fatalf("FindAllByType: %v", err)
	}
	if len(got) != 2 || got[0].ID != a.ID || got[1].ID != b.ID {
		t.Fatalf("FindAllByType = %+v; want ids [%d %d]", got, a.ID, b.ID)
	}
	if got[1].Value.StringFixed(2) != "1009.50" {
		t.Errorf("value = %s; want 1009.50", got[1].Value.StringFixed(2))
	}

	empty, err := repo.FindAllByType(context.Background(), types.Temperature)
	if err != nil {
		t.Fatalf("FindAllByType: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("FindAllByType(TEMPERATURE) = %#v; want empty non-nil slice", empty)
	}
}

func TestClosedDatabase_ReturnsStorageError(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}
	repo := NewRepository(db)
	ctx := context.Background()

	if _, found, err := repo.FindLatest(ctx, types.CO2); !errors.Is(err, ErrStorage) || found {
		t.Errorf("FindLatest: found=%v err=%v; want ErrStorage", found, err)
	}
	if _, found, err := repo.FindTop(ctx, types.CO2); !errors.Is(err, ErrStorage) || found {
		t.Errorf("FindTop: found=%v err=%v; want ErrStorage", found, err)
	}
	if _, err := repo.FindAllByType(ctx, types.CO2); !errors.Is(err, ErrStorage) {
		t.Errorf("FindAllByType err = %v; want ErrStorage", err)
	}
	if _, err := repo.FindByTypeInRange(ctx, types.CO2, base, base); !errors.Is(err, ErrStorage) {
		t.Errorf("FindByTypeInRange err = %v; want ErrStorage", err)
	}
	if _, err := repo.Insert(ctx, types.Measure{Type: types.CO2, Unit: types.PPM, Value: dec("1")}); !errors.Is(err, ErrStorage) {
		t.Errorf("Insert err = %v; want ErrStorage", err)
	}
}
