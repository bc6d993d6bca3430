package shared

import (
	"strings"
)

// UserID is the opaque identifier issued by the identity service.
type UserID string

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// IsEmpty checks if the ID is empty.
func (u UserID) IsEmpty() bool {
	return u == ""
}

// NewUserID trims and validates an identity-service user id.
func NewUserID(id string) (UserID, error) {
	uid := UserID(strings.TrimSpace(id))
	if uid.IsEmpty() {
		return "", NewDomainError("shared", "NewUserID", ErrInvalidID, "user ID is empty")
	}
	return uid, nil
}

// Coins is a non-negative wallet balance.
type Coins int

// Int returns the underlying int value.
func (c Coins) Int() int {
	return int(c)
}

// Add returns c plus amount, floored at zero.
func (c Coins) Add(amount int) Coins {
	if r := int(c) + amount; r > 0 {
		return Coins(r)
	}
	return 0
}

// Covers reports whether the balance pays for price.
func (c Coins) Covers(price int) bool {
	return int(c) >= price
}

// XP is the lifetime experience total. It only grows.
type XP int

// Int returns the underlying int value.
func (x XP) Int() int {
	return int(x)
}

// Add adds XP. Negative amounts are ignored.
func (x XP) Add(amount int) XP {
	if amount <= 0 {
		return x
	}
	return x + XP(amount)
}

// Wallet holds a user's spendable coins and lifetime XP.
type Wallet struct {
	Coins Coins `json:"coins"`
	XP    XP    `json:"xp"`
}

// Credit returns the wallet with xp and coins added.
func (w Wallet) Credit(xp, coins int) Wallet {
	return Wallet{Coins: w.Coins.Add(coins), XP: w.XP.Add(xp)}
}

// Pagination bounds a keyset page. Pages are addressed by a cursor such as
// a sequence number, never by offset.
type Pagination struct {
	PageSize int
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Limit returns the limit for database queries.
func (p Pagination) Limit() int {
	if p.PageSize <= 0 {
		return DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		return MaxPageSize
	}
	return p.PageSize
}

// NewPagination creates a new Pagination with the size clamped.
func NewPagination(pageSize int) Pagination {
	return Pagination{PageSize: Pagination{PageSize: pageSize}.Limit()}
}
