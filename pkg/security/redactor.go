package security

import (
	"regexp"
	"sort"
	"strings"

	"github.com/arnavsurve/sheetflow/pkg/core"
)

const mask = "********"

// signedParamRegex matches credentials carried in the query string of pre-signed download URLs.
var signedParamRegex = regexp.MustCompile(`(?i)\b((?:x-amz-signature|x-amz-credential|x-amz-security-token|signature|sig|token)=)[^&\s"']+`)

type Redactor struct {
	Secrets []string
	// MaskSignedURLs also hides signature parameters of pre-signed URLs.
	MaskSignedURLs bool
}

// NewRedactor collects the values of secret workflow inputs plus any extra secrets such as the API key.
func NewRedactor(inputs []core.Input, varCtx core.VarContext, extra ...string) *Redactor {
	var secretValues []string
	for _, input := range inputs {
		if input.Secret {
			if val, ok := varCtx[input.Name]; ok && val != "" {
				secretValues = append(secretValues, val)
			}
		}
	}
	for _, s := range extra {
		if s != "" {
			secretValues = append(secretValues, s)
		}
	}
	return &Redactor{
		Secrets:        secretValues,
		MaskSignedURLs: true,
	}
}

func (r *Redactor) Redact(s string) string {
	if r == nil {
		return s
	}
	if r.MaskSignedURLs {
		s = signedParamRegex.ReplaceAllString(s, "${1}"+mask)
	}
	if len(r.Secrets) == 0 {
		return s
	}

	// Longer secrets go first so a secret that contains another is masked whole.
	secrets := make([]string, len(r.Secrets))
	copy(secrets, r.Secrets)
	sort.Slice(secrets, func(i, j int) bool {
		return len(secrets[i]) > len(secrets[j])
	})

	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, mask)
	}
	return s
}
