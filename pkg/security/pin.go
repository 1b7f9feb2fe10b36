// Package security provides PIN strength analysis.
//
// A 4-digit PIN has only 10,000 values, so strength here means "not among
// the handful of PINs people pick first". The vault's unlock cooldown is
// what makes the keyspace survivable.
package security

import "fmt"

// PINLength is the only accepted PIN length.
const PINLength = 4

// PINStrength represents how guessable a PIN is.
type PINStrength int

const (
	// PINInvalid means the input is not exactly four ASCII digits.
	PINInvalid PINStrength = iota
	// PINWeak is a PIN attackers try first (sequence, repeat, common pick).
	PINWeak
	// PINFair is a PIN with a guessable structure such as a year or pairs.
	PINFair
	// PINGood has no known pattern.
	PINGood
)

// String returns a human-readable representation of the PIN strength.
func (s PINStrength) String() string {
	switch s {
	case PINInvalid:
		return "Invalid"
	case PINWeak:
		return "Weak"
	case PINFair:
		return "Fair"
	case PINGood:
		return "Good"
	default:
		return "Unknown"
	}
}

// PINReport is the result of CheckPIN.
type PINReport struct {
	Strength PINStrength
	Warnings []string
}

// Valid reports whether the PIN may be used at all.
func (r PINReport) Valid() bool {
	return r.Strength != PINInvalid
}

// commonPINs are the most frequently chosen 4-digit PINs.
var commonPINs = map[string]bool{
	"1234": true, "1111": true, "0000": true, "1212": true, "7777": true,
	"1004": true, "2000": true, "4444": true, "2222": true, "6969": true,
	"9999": true, "3333": true, "5555": true, "6666": true, "1122": true,
	"1313": true, "8888": true, "4321": true, "2001": true, "1010": true,
}

// CheckPIN validates pin and warns about easily guessed choices.
func CheckPIN(pin string) PINReport {
	if !isDigits(pin) || len(pin) != PINLength {
		return PINReport{
			Strength: PINInvalid,
			Warnings: []string{fmt.Sprintf("PIN must be exactly %d digits", PINLength)},
		}
	}

	report := PINReport{Strength: PINGood}
	weak := func(msg string) {
		report.Strength = PINWeak
		report.Warnings = append(report.Warnings, msg)
	}
	fair := func(msg string) {
		if report.Strength > PINFair {
			report.Strength = PINFair
		}
		report.Warnings = append(report.Warnings, msg)
	}

	switch {
	case isRepeated(pin):
		weak("PIN repeats a single digit")
	case isSequence(pin, 1) || isSequence(pin, -1):
		weak("PIN is a consecutive sequence")
	case commonPINs[pin]:
		weak("PIN is one of the most commonly used PINs")
	}

	if report.Strength != PINWeak {
		if pin[0] == pin[2] && pin[1] == pin[3] {
			fair("PIN repeats a pair of digits")
		} else if pin[0] == pin[1] && pin[2] == pin[3] {
			fair("PIN consists of two doubled digits")
		}
		if looksLikeYear(pin) {
			fair("PIN looks like a year")
		}
	}

	return report
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isRepeated(pin string) bool {
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			return false
		}
	}
	return true
}

// isSequence reports whether each digit differs from the previous by step.
func isSequence(pin string, step int) bool {
	for i := 1; i < len(pin); i++ {
		if int(pin[i])-int(pin[i-1]) != step {
			return false
		}
	}
	return true
}

// looksLikeYear matches 1940-2039, the range of birth and anniversary years.
func looksLikeYear(pin string) bool {
	prefix := pin[:2]
	switch prefix {
	case "19":
		return pin[2] >= '4'
	case "20":
		return pin[2] <= '3'
	}
	return false
}
