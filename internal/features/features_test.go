package features

import (
	"errors"
	"math"
	"testing"
	"time"

	"sentiq/internal/domain"
)

func bars(closes ...float64) []domain.Bar {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.Bar, len(closes))
	for i, c := range closes {
		out[i] = domain.Bar{Symbol: "AAPL", Timestamp: day.AddDate(0, 0, i), Close: c}
	}
	return out
}

func TestReturns(t *testing.T) {
	got := Returns(bars(100, 110, 0, 99, 99))
	want := []struct {
		v  float64
		ok bool
	}{{0.1, true}, {0, false}, {0, false}, {0, true}}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		v, ok := got[i].Get()
		if ok != w.ok || (ok && math.Abs(v-w.v) > 1e-12) {
			t.Errorf("Returns[%d] = %v,%v want %v,%v", i, v, ok, w.v, w.ok)
		}
	}
	if Returns(bars(1)) != nil {
		t.Error("Returns of a single bar should be nil")
	}
}

func TestRollingStd(t *testing.T) {
	vals := []domain.Maybe[float64]{
		domain.Some(1.0), domain.Some(2.0), domain.Some(3.0), domain.None[float64](), domain.Some(5.0),
		domain.Some(5.0), domain.Some(5.0),
	}
	got := RollingStd(vals, 3)
	for i, wantOK := range []bool{false, false, true, false, false, false, true} {
		if got[i].Valid != wantOK {
			t.Errorf("RollingStd[%d].Valid = %v, want %v", i, got[i].Valid, wantOK)
		}
	}
	if v := got[2].Value; math.Abs(v-1) > 1e-12 {
		t.Errorf("std(1,2,3) = %v, want 1", v)
	}
	if v := got[6].Value; v != 0 {
		t.Errorf("std(5,5,5) = %v, want 0", v)
	}
}

func TestBuild(t *testing.T) {
	in := bars(100, 101, 99, 102, 103, 101)
	// Shuffle to check sorting.
	in[0], in[4] = in[4], in[0]

	rows, err := Build(in, 0.25, 3)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// Five returns, the first full window ends at the third.
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3", len(rows))
	}
	wantTime := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	if !rows[0].Time.Equal(wantTime) {
		t.Errorf("rows[0].Time = %v, want %v", rows[0].Time, wantTime)
	}
	if math.Abs(rows[0].Return-(102.0/99-1)) > 1e-12 {
		t.Errorf("rows[0].Return = %v", rows[0].Return)
	}
	for i, want := range []int{1, 0, 0} {
		if rows[i].Target != want {
			t.Errorf("rows[%d].Target = %d, want %d", i, rows[i].Target, want)
		}
		if rows[i].Sentiment != 0.25 {
			t.Errorf("rows[%d].Sentiment = %v", i, rows[i].Sentiment)
		}
		if _, ok := rows[i].Vector(); !ok {
			t.Errorf("rows[%d] incomplete", i)
		}
	}
	for i := 1; i < len(rows); i++ {
		if !rows[i].Time.After(rows[i-1].Time) {
			t.Errorf("rows not time-ordered at %d", i)
		}
	}
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(bars(1, 2, 3), 0, 1)
	var ce *domain.ConfigError
	if !errors.As(err, &ce) || ce.Field != "vol_window" {
		t.Errorf("Build(window=1) error = %v", err)
	}
	if _, err := Build(bars(1, 2, 3), math.NaN(), 3); err == nil {
		t.Error("Build with NaN sentiment succeeded")
	}
	rows, err := Build(bars(1, 2), 0, 3)
	if err != nil || len(rows) != 0 {
		t.Errorf("Build(short) = %v, %v", rows, err)
	}
}
