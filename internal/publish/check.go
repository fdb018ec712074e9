package publish

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/pewpi-infinity/spark/internal/model"
)

// ErrInvalidDocument is wrapped by CheckDocument when rendered HTML lacks a
// required marker.
var ErrInvalidDocument = errors.New("rendered document is incomplete")

// CheckDocument verifies the parts of a rendered page other sites and
// crawlers depend on: the title, the description/keywords/og meta tags, one
// data-feature section per enabled feature and the footer site name.
func CheckDocument(doc string, p model.BuildPage, siteName string) error {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	d := goquery.NewDocumentFromNode(root)

	var problems []string
	if got, want := strings.TrimSpace(d.Find("head > title").Text()), strings.TrimSpace(asParsed(p.Title+" | "+siteName)); got != want {
		problems = append(problems, fmt.Sprintf("title %q, want %q", got, want))
	}

	for _, sel := range []string{`meta[name="description"]`, `meta[name="keywords"]`, `meta[property="og:title"]`} {
		if _, ok := d.Find(sel).Attr("content"); !ok {
			problems = append(problems, "missing "+sel)
		}
	}
	if kw, _ := d.Find(`meta[name="keywords"]`).Attr("content"); kw != asParsed(strings.Join(p.Tags, ", ")) {
		problems = append(problems, fmt.Sprintf("keywords %q do not match tags", kw))
	}

	var sections []string
	d.Find("section[data-feature]").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("data-feature")
		sections = append(sections, name)
	})
	slices.Sort(sections)
	want := slices.Clone(p.Features.Enabled())
	slices.Sort(want)
	if !slices.Equal(sections, want) {
		problems = append(problems, fmt.Sprintf("feature sections %v, want %v", sections, want))
	}

	if !strings.Contains(d.Find("footer").Text(), asParsed(siteName)) {
		problems = append(problems, "footer does not name the site")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(problems, "; "))
	}
	return nil
}

// parsedText applies the input stream preprocessing every HTML parser does:
// CR and CRLF become LF and NUL becomes U+FFFD. Expected values go through
// it so they compare equal to the parsed document.
var parsedText = strings.NewReplacer("\r\n", "\n", "\r", "\n", "\x00", "\uFFFD")

func asParsed(s string) string { return parsedText.Replace(s) }
