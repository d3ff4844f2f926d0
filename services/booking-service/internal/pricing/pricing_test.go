package pricing

import (
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/ledger"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/model"
)

func lakeside() model.Service {
	return model.Service{
		ID:                  "svc-lakeside",
		Price:               1000,
		MinDays:             1,
		MaxDays:             2,
		MinCapacity:         2,
		MaxCapacity:         4,
		AllowExtraOccupants: true,
		ExtraFeePerPerson:   50,
		MaxExtraOccupants:   2,
	}
}

func nights(n int) ledger.DateRange {
	start := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	return ledger.DateRange{Start: start, End: start.AddDate(0, 0, n)}
}

func TestQuote(t *testing.T) {
	cases := []struct {
		name    string
		svc     func(model.Service) model.Service
		days    int
		people  int
		want    int64
		wantErr error
	}{
		{name: "one extra occupant charged", days: 1, people: 5, want: 1050},
		{name: "within capacity", days: 2, people: 4, want: 1000},
		{name: "extra cap reached", days: 1, people: 6, want: 1100},
		{name: "too many extra occupants", days: 1, people: 7, wantErr: model.ErrCapacityExceeded},
		{name: "below minimum", days: 1, people: 1, wantErr: model.ErrCapacityExceeded},
		{name: "stay too long", days: 3, people: 2, wantErr: model.ErrInvalidDateRange},
		{
			name:    "extras not allowed",
			svc:     func(s model.Service) model.Service { s.AllowExtraOccupants = false; return s },
			days:    1,
			people:  5,
			wantErr: model.ErrCapacityExceeded,
		},
		{
			name:    "minimum stay enforced",
			svc:     func(s model.Service) model.Service { s.MinDays, s.MaxDays = 2, 5; return s },
			days:    1,
			people:  2,
			wantErr: model.ErrInvalidDateRange,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := lakeside()
			if tc.svc != nil {
				svc = tc.svc(svc)
			}
			got, err := Quote(svc, nights(tc.days), tc.people)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v (price %d)", tc.wantErr, err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Quote: %v", err)
			}
			if got != tc.want {
				t.Fatalf("price = %d, want %d", got, tc.want)
			}
		})
	}
}
