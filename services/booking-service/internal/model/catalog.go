package model

import (
	"fmt"
	"time"
)

// Service is a bookable stay (pitch, cabin, tent site). Prices are minor units.
type Service struct {
	ID                  string
	Name                string
	Price               int64
	MinDays             int
	MaxDays             int
	MinCapacity         int
	MaxCapacity         int
	AllowExtraOccupants bool
	ExtraFeePerPerson   int64
	MaxExtraOccupants   int
	UpdatedAt           time.Time
}

func (s Service) Validate() error {
	switch {
	case s.ID == "":
		return fmt.Errorf("%w: service id required", ErrInvalidArgument)
	case s.Price < 0 || s.ExtraFeePerPerson < 0:
		return fmt.Errorf("%w: prices must not be negative", ErrInvalidArgument)
	case s.MinDays < 1 || s.MaxDays < s.MinDays:
		return fmt.Errorf("%w: stay bounds must satisfy 1 <= min_days <= max_days", ErrInvalidArgument)
	case s.MinCapacity < 1 || s.MaxCapacity < s.MinCapacity:
		return fmt.Errorf("%w: capacity bounds must satisfy 1 <= min_capacity <= max_capacity", ErrInvalidArgument)
	case s.MaxExtraOccupants < 0:
		return fmt.Errorf("%w: max_extra_occupants must not be negative", ErrInvalidArgument)
	}
	return nil
}

// Combo is a fixed-price bundle.
type Combo struct {
	ID        string
	Name      string
	Price     int64
	UpdatedAt time.Time
}

// Equipment is a flat-rate rentable item.
type Equipment struct {
	ID        string
	Name      string
	Price     int64
	UpdatedAt time.Time
}

// FlatItem validates the shared shape of combos and equipment.
func FlatItem(id string, price int64) error {
	if id == "" {
		return fmt.Errorf("%w: id required", ErrInvalidArgument)
	}
	if price < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidArgument)
	}
	return nil
}
