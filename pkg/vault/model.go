package vault

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"
)

// EntryType classifies categories and transactions.
type EntryType string

const (
	Income  EntryType = "income"
	Expense EntryType = "expense"
)

// Valid reports whether t is income or expense.
func (t EntryType) Valid() bool {
	return t == Income || t == Expense
}

// Input validation limits
const (
	MaxAmount         int64 = 100_000_000_000 // Rp100.000.000.000
	MaxCategoryName         = 64
	MaxNoteLength           = 1024
	DateLayout              = "2006-01-02"
	categoryIDPrefix        = "cat-"
	categoryIDRandLen       = 8
)

// Category groups transactions of one type.
type Category struct {
	ID   string    `json:"id"`
	Name string    `json:"name" validate:"notblank,max=64"`
	Type EntryType `json:"type" validate:"entrytype"`
}

// Transaction is a single income or expense record.
// CategoryID becomes nil when the category is deleted; CategoryName keeps
// the name as it was when the transaction was recorded.
type Transaction struct {
	ID           string     `json:"id"`
	Date         string     `json:"date" validate:"isodate"`
	Type         EntryType  `json:"type" validate:"entrytype"`
	CategoryID   *string    `json:"categoryId"`
	CategoryName string     `json:"categoryName"`
	Amount       int64      `json:"amount" validate:"gt=0,lte=100000000000"`
	Note         string     `json:"note" validate:"max=1024"`
	CreatedAt    *time.Time `json:"createdAt,omitempty"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty"`
}

// TransactionPatch overwrites the non-nil fields of a transaction.
// ClearCategory sets CategoryID to nil and wins over CategoryID.
type TransactionPatch struct {
	Date          *string
	Type          *EntryType
	CategoryID    *string
	ClearCategory bool
	CategoryName  *string
	Amount        *int64
	Note          *string
}

func (p TransactionPatch) apply(tx *Transaction) {
	if p.Date != nil {
		tx.Date = *p.Date
	}
	if p.Type != nil {
		tx.Type = *p.Type
	}
	if p.CategoryID != nil {
		id := *p.CategoryID
		tx.CategoryID = &id
	}
	if p.ClearCategory {
		tx.CategoryID = nil
	}
	if p.CategoryName != nil {
		tx.CategoryName = *p.CategoryName
	}
	if p.Amount != nil {
		tx.Amount = *p.Amount
	}
	if p.Note != nil {
		tx.Note = *p.Note
	}
}

// CategoryPatch overwrites the non-nil fields of a category.
type CategoryPatch struct {
	Name *string
	Type *EntryType
}

func (p CategoryPatch) apply(c *Category) {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Type != nil {
		c.Type = *p.Type
	}
}

// NormalizeCategoryName trims and NFC-normalizes a category name so that
// visually identical names compare equal.
func NormalizeCategoryName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

var (
	validate  *validator.Validate
	nonBlank  = regexp.MustCompile(`\S`)
	pinFormat = regexp.MustCompile(`^[0-9]{4}$`)
)

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	_ = validate.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(DateLayout, fl.Field().String())
		return err == nil
	})
	_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return nonBlank.MatchString(fl.Field().String())
	})
	_ = validate.RegisterValidation("entrytype", func(fl validator.FieldLevel) bool {
		return EntryType(fl.Field().String()).Valid()
	})
}

// validateRecord runs struct validation and maps failures to ErrValidation.
func validateRecord(record any) error {
	err := validate.Struct(record)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "gt":
		return field + " must be positive"
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "isodate":
		return field + " must be a YYYY-MM-DD date"
	case "notblank":
		return field + " is required"
	case "entrytype":
		return field + " must be income or expense"
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

// ValidatePIN checks that pin is exactly four ASCII digits.
func ValidatePIN(pin string) error {
	if !pinFormat.MatchString(pin) {
		return ErrInvalidPIN
	}
	return nil
}
