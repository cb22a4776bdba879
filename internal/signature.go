package internal

import (
	"crypto/subtle"
	"net/url"
	"strings"

	"github.com/golang-module/dongle"

	"storefront/entity"
)

// Signer produces and checks gateway signatures.
// The same canonical string is used for outbound requests and inbound notifications.
type Signer struct {
	passphrase string
}

func NewSigner(passphrase string) *Signer {
	return &Signer{
		passphrase: passphrase,
	}
}

// EncodeCanonical joins present fields as key=value pairs in signature order.
// Values are trimmed and query-escaped, so a space becomes '+'; the marks
// ! ' ( ) * stay unescaped.
func EncodeCanonical(fields entity.PaymentFields) string {
	var sb strings.Builder
	for _, field := range fields.Ordered() {
		if sb.Len() > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(field.Name)
		sb.WriteByte('=')
		sb.WriteString(encodeValue(field.Value))
	}
	return sb.String()
}

// SignatureString is the exact hash input: the canonical string plus the passphrase suffix.
func (s *Signer) SignatureString(fields entity.PaymentFields) string {
	output := EncodeCanonical(fields)
	if passphrase := strings.TrimSpace(s.passphrase); passphrase != "" {
		output += "&" + entity.FieldPassphrase + "=" + encodeValue(passphrase)
	}
	return output
}

// Sign returns the lower-case hex MD5 digest of the signature string.
func (s *Signer) Sign(fields entity.PaymentFields) string {
	return dongle.Encrypt.FromString(s.SignatureString(fields)).ByMd5().ToHexString()
}

// Verify recomputes the signature and compares it in constant time.
func (s *Signer) Verify(fields entity.PaymentFields, claimed string) bool {
	if claimed == "" {
		return false
	}
	expected := s.Sign(fields)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(claimed)) == 1
}

// unreservedMarks are left as they are by the gateway's encoder
var unreservedMarks = strings.NewReplacer("%21", "!", "%27", "'", "%28", "(", "%29", ")", "%2A", "*")

func encodeValue(value string) string {
	return unreservedMarks.Replace(url.QueryEscape(strings.TrimSpace(value)))
}
