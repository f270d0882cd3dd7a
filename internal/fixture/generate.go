// internal/fixture/generate.go
package fixture

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
)

// Character sets for generated secrets. Ambiguous glyphs are left out.
const (
	lowerChars  = "abcdefghijkmnopqrstuvwxyz"
	upperChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	digitChars  = "23456789"
	symbolChars = "!@#$%^&*"

	// passwordPrefix guarantees every character class the target requires.
	passwordPrefix    = "a1!A"
	minPasswordLength = 12
)

var (
	firstNames = []string{"Ava", "Liam", "Noah", "Mia", "Zoe", "Omar", "Iris", "Hugo", "Nina", "Ravi"}
	lastNames  = []string{"Hart", "Silva", "Okafor", "Nakamura", "Berg", "Kowalski", "Reyes", "Lund", "Patel", "Moreau"}
	subjects   = []string{"Maths", "English"}
)

func randIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("crypto/rand failure: %w", err)
	}
	return int(v.Int64()), nil
}

func randFrom(charset string) (byte, error) {
	i, err := randIndex(len(charset))
	if err != nil {
		return 0, err
	}
	return charset[i], nil
}

func pick(list []string) (string, error) {
	i, err := randIndex(len(list))
	if err != nil {
		return "", err
	}
	return list[i], nil
}

// Password returns a password accepted by the target's policy: it starts with the
// fixed class prefix and is padded with random characters.
func Password() (string, error) {
	all := lowerChars + upperChars + digitChars + symbolChars
	buf := []byte(passwordPrefix)
	for len(buf) < minPasswordLength {
		c, err := randFrom(all)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}
	return string(buf), nil
}

// UserName returns a unique, lowercase user name with the given prefix.
func UserName(prefix string) (string, error) {
	var suffix strings.Builder
	for i := 0; i < 4; i++ {
		c, err := randFrom(lowerChars + digitChars)
		if err != nil {
			return "", err
		}
		suffix.WriteByte(c)
	}
	if prefix == "" {
		prefix = "testuser"
	}
	return fmt.Sprintf("%s_%d%s", sanitize(prefix), time.Now().UnixMilli(), suffix.String()), nil
}

// sanitize keeps only characters the registration form accepts in a user name.
func sanitize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "user"
	}
	return b.String()
}

// NewCredentials generates a fresh, unregistered credentials pair.
func NewCredentials() (schemas.Credentials, error) {
	name, err := UserName("testuser")
	if err != nil {
		return schemas.Credentials{}, err
	}
	pass, err := Password()
	if err != nil {
		return schemas.Credentials{}, err
	}
	return schemas.Credentials{UserName: name, Password: pass}, nil
}

// NewPracticeForm generates data for the automation practice form. An empty email
// argument produces a valid one.
func NewPracticeForm(email, picturePath string) (schemas.PracticeForm, error) {
	first, err := pick(firstNames)
	if err != nil {
		return schemas.PracticeForm{}, err
	}
	last, err := pick(lastNames)
	if err != nil {
		return schemas.PracticeForm{}, err
	}
	var mobile strings.Builder
	mobile.WriteByte('9')
	for mobile.Len() < 10 {
		c, err := randFrom("0123456789")
		if err != nil {
			return schemas.PracticeForm{}, err
		}
		mobile.WriteByte(c)
	}
	if email == "" {
		email = fmt.Sprintf("%s.%s.%d@example.com", strings.ToLower(first), strings.ToLower(last), time.Now().UnixMilli()%1000000)
	}
	return schemas.PracticeForm{
		FirstName:   first,
		LastName:    last,
		Email:       email,
		Mobile:      mobile.String(),
		Gender:      "Other",
		DateOfBirth: "10 Oct 1990",
		Subjects:    append([]string(nil), subjects...),
		Hobbies:     []string{"Sports", "Reading", "Music"},
		PicturePath: picturePath,
		Address:     fmt.Sprintf("%d Test Street, Automation City", 100+len(first)*len(last)),
		State:       "NCR",
		City:        "Delhi",
	}, nil
}
