package auth

import (
	"regexp"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	TOTPPeriod     = 30
	TOTPSkew       = 1
	totpSecretSize = 20
)

var totpCodePattern = regexp.MustCompile(`^[0-9]{6}$`)

var totpOpts = totp.ValidateOpts{
	Period:    TOTPPeriod,
	Skew:      TOTPSkew,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// TOTPKey is a freshly generated shared secret and its otpauth:// URI for
// authenticator apps.
type TOTPKey struct {
	Secret string
	URI    string
}

func NewTOTPKey(issuer, accountName string) (*TOTPKey, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		Period:      TOTPPeriod,
		SecretSize:  totpSecretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, err
	}
	return &TOTPKey{Secret: key.Secret(), URI: key.URL()}, nil
}

// GenerateTOTPSecret returns a random base32 secret of fixed length.
func GenerateTOTPSecret() (string, error) {
	key, err := NewTOTPKey("intranet", "pending")
	if err != nil {
		return "", err
	}
	return key.Secret, nil
}

// VerifyTOTPCode accepts codes for the window containing at and one window on
// either side. Any malformed input is just a non-match.
func VerifyTOTPCode(secret, code string, at time.Time) bool {
	if secret == "" || !totpCodePattern.MatchString(code) {
		return false
	}
	valid, err := totp.ValidateCustom(code, secret, at.UTC(), totpOpts)
	return err == nil && valid
}
