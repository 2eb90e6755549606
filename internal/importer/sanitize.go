package importer

import (
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	bodyPolicyOnce sync.Once
	bodyPolicy     *bluemonday.Policy
)

var blockElements = []string{"p", "h1", "h2", "h3", "h4", "h5", "h6"}

// Sanitize reduces converter output to the elements a flow body may carry.
// Indentation styles on block elements and data-URI images survive.
func Sanitize(raw string) string {
	return strings.TrimSpace(bodySanitizer().Sanitize(raw))
}

func bodySanitizer() *bluemonday.Policy {
	bodyPolicyOnce.Do(func() {
		policy := bluemonday.NewPolicy()
		policy.AllowElements(blockElements...)
		policy.AllowElements("br", "strong", "b", "em", "i", "u", "span")

		policy.AllowStyles("margin-left", "text-indent").
			Matching(regexp.MustCompile(`^-?\d+(\.\d+)?px$`)).
			OnElements(blockElements...)

		policy.AllowImages()
		policy.AllowDataURIImages()

		bodyPolicy = policy
	})
	return bodyPolicy
}
