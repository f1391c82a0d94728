// Package validate holds the field checks shared by the HTTP handlers and
// the CSV importer.
package validate

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const DateLayout = "2006-01-02"

var (
	aliasRe    = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}$`)
	usernameRe = regexp.MustCompile(`^[A-Za-z0-9._@-]{3,64}$`)
	priceRe    = regexp.MustCompile(`^\d{1,8}(\.\d{1,2})?$`)
	currencyRe = regexp.MustCompile(`^[A-Z]{3}$`)
)

func Required(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

// Alias accepts lowercase slugs such as "clinic-north".
func Alias(v string) error {
	if !aliasRe.MatchString(v) {
		return errors.New("alias must be a lowercase slug (a-z, 0-9, -)")
	}
	return nil
}

// Username allows an empty value; such accounts cannot log in.
func Username(v string) error {
	if v == "" || usernameRe.MatchString(v) {
		return nil
	}
	return errors.New("username must be 3-64 characters of letters, digits, . _ @ -")
}

func Email(v string) error {
	if v == "" {
		return nil
	}
	if _, err := mail.ParseAddress(v); err != nil {
		return errors.New("invalid email")
	}
	return nil
}

// Password checks length only; bcrypt caps input at 72 bytes.
func Password(v string) error {
	if len(v) < 6 || len(v) > 72 {
		return errors.New("password must be 6-72 characters")
	}
	return nil
}

func HashPassword(v string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(v), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func CheckPassword(hash, v string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(v)) == nil
}

// Timezone defaults to UTC and must be loadable.
func Timezone(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "UTC", nil
	}
	if _, err := time.LoadLocation(v); err != nil {
		return "", fmt.Errorf("unknown timezone %q", v)
	}
	return v, nil
}

// Price normalizes a non-negative amount with at most two decimals to
// exactly two decimals.
func Price(v string) (string, error) {
	v = strings.TrimSpace(v)
	if !priceRe.MatchString(v) {
		return "", errors.New("price must be a non-negative amount with at most 2 decimals")
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return "", errors.New("invalid price")
	}
	return strconv.FormatFloat(f, 'f', 2, 64), nil
}

func Duration(minutes int) error {
	if minutes <= 0 || minutes > 1440 {
		return errors.New("duration_minutes must be between 1 and 1440")
	}
	return nil
}

// Currency defaults to fallback when empty.
func Currency(v, fallback string) (string, error) {
	v = strings.ToUpper(strings.TrimSpace(v))
	if v == "" {
		v = fallback
	}
	if !currencyRe.MatchString(v) {
		return "", errors.New("currency must be a 3-letter ISO code")
	}
	return v, nil
}

func Date(field, v string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD", field)
	}
	return t, nil
}

// DateRange requires end >= start.
func DateRange(start, end string) error {
	s, err := Date("start_date", start)
	if err != nil {
		return err
	}
	e, err := Date("end_date", end)
	if err != nil {
		return err
	}
	if e.Before(s) {
		return errors.New("end_date must not be before start_date")
	}
	return nil
}
