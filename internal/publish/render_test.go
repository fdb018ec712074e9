package publish

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/pewpi-infinity/spark/internal/model"
	"github.com/pewpi-infinity/spark/internal/site"
)

func testPage(title string, features model.Features) model.BuildPage {
	return model.BuildPage{
		ID:        "PAGE-LOYW3V28-ABCDEFG",
		TokenID:   "INF-LOYW3V28-1234567",
		Title:     title,
		Content:   "Jazz began in New Orleans.",
		Features:  features,
		Timestamp: 1700000000000,
		Tags:      []string{"jazz", "history"},
		State:     model.Draft(),
	}
}

func testConfig() site.Config {
	name, user, repo := "Spark Notes", "alice", "site"
	return site.Defaults().Apply(site.Patch{SiteName: &name, GitHubUser: &user, RepoName: &repo})
}

func TestRenderDocument(t *testing.T) {
	page := testPage("History of Jazz", model.Features{Charts: true, Navigation: true, Monetization: true})
	art, err := Render(page, testConfig(), 1700000001000)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	for _, want := range []string{
		"<title>History of Jazz | Spark Notes</title>",
		`<meta name="keywords" content="jazz, history">`,
		`<meta property="og:title" content="History of Jazz">`,
		`data-feature="charts"`,
		`data-feature="navigation"`,
		`data-feature="monetization"`,
		`<a href="#charts">Charts</a>`,
		"Published with Spark Notes powered by INFINITY",
		"Generated: November 14, 2023",
		"<style>",
	} {
		if !strings.Contains(art.HTML, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
	if strings.Contains(art.HTML, `data-feature="images"`) {
		t.Error("disabled feature rendered")
	}

	if art.Slug != "history-of-jazz" {
		t.Errorf("Slug = %q", art.Slug)
	}
	if art.URL != "https://alice.github.io/site/pages/history-of-jazz/" {
		t.Errorf("URL = %q", art.URL)
	}
	if err := CheckDocument(art.HTML, page, "Spark Notes"); err != nil {
		t.Errorf("CheckDocument on rendered page: %v", err)
	}
}

func TestRenderEscapesContent(t *testing.T) {
	page := testPage(`Tags <b> & "quotes"`, model.Features{})
	page.Content = `<script>alert("x")</script>`
	art, err := Render(page, testConfig(), 1)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(art.HTML, "<script>") {
		t.Error("content not escaped")
	}
	if err := CheckDocument(art.HTML, page, "Spark Notes"); err != nil {
		t.Errorf("CheckDocument: %v", err)
	}
}

func TestRenderDescriptionTruncated(t *testing.T) {
	page := testPage("Long", model.Features{})
	page.Content = strings.Repeat("é", 300)
	v := newPageView(page, "s")
	if n := len([]rune(v.Description)); n != descriptionLimit {
		t.Errorf("description runes = %d, want %d", n, descriptionLimit)
	}
}

func TestRenderMetadata(t *testing.T) {
	page := testPage("History of Jazz", model.Features{Images: true})
	art, err := Render(page, testConfig(), 42)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	var meta Metadata
	if err := json.Unmarshal([]byte(art.Metadata), &meta); err != nil {
		t.Fatalf("metadata is not JSON: %v", err)
	}
	if meta.ID != page.ID || meta.TokenID != page.TokenID || meta.Slug != "history-of-jazz" || meta.PublishedAt != 42 {
		t.Errorf("metadata = %+v", meta)
	}
	if !meta.Features.Images {
		t.Error("features not carried into metadata")
	}
}

func TestPageSlugFallsBackToID(t *testing.T) {
	page := testPage("!!!", model.Features{})
	if got := PageSlug(page); got != "page-loyw3v28-abcdefg" {
		t.Errorf("PageSlug = %q", got)
	}
}

func TestFilesAndRepoPath(t *testing.T) {
	art := Artifact{Slug: "a", HTML: "h", Metadata: "m"}
	files := art.Files()
	if files[0].Path != "pages/a/index.html" || files[1].Path != "pages/a/page.json" {
		t.Errorf("files = %+v", files)
	}
	if got := RepoPath("/docs", files[0].Path); got != "docs/pages/a/index.html" {
		t.Errorf("RepoPath(/docs) = %q", got)
	}
	if got := RepoPath("/", files[0].Path); got != "pages/a/index.html" {
		t.Errorf("RepoPath(/) = %q", got)
	}
}

func TestCheckDocumentRejectsMissingMarkers(t *testing.T) {
	page := testPage("History of Jazz", model.Features{Charts: true})
	art, _ := Render(page, testConfig(), 1)

	tests := map[string]string{
		"missing section": strings.Replace(art.HTML, `data-feature="charts"`, "", 1),
		"wrong title":     strings.Replace(art.HTML, "<title>History of Jazz", "<title>Other", 1),
		"no keywords":     strings.Replace(art.HTML, `<meta name="keywords" content="jazz, history">`, "", 1),
	}
	for name, doc := range tests {
		if err := CheckDocument(doc, page, "Spark Notes"); !errors.Is(err, ErrInvalidDocument) {
			t.Errorf("%s: err = %v, want ErrInvalidDocument", name, err)
		}
	}
}

func TestAsParsed(t *testing.T) {
	for in, want := range map[string]string{
		"a\r\nb":   "a\nb",
		"a\rb":     "a\nb",
		"a\r\r\nb": "a\n\nb",
		"n\x00ul":  "n\uFFFDul",
		"plain":    "plain",
	} {
		if got := asParsed(in); got != want {
			t.Errorf("asParsed(%q) = %q, want %q", in, got, want)
		}
	}
}
