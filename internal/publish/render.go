package publish

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pewpi-infinity/spark/internal/model"
	"github.com/pewpi-infinity/spark/internal/site"
)

//go:embed templates/page.html.tmpl
var templatesFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templatesFS, "templates/page.html.tmpl"))

const descriptionLimit = 160

// sectionCopy is the heading and placeholder body for each content feature.
var sectionCopy = map[string][2]string{
	"charts":  {"Data Visualization", "Chart components and data visualizations based on page content would be rendered here."},
	"images":  {"Image Gallery", "Image gallery and visual media components would be displayed here."},
	"audio":   {"Audio Content", "Audio player and sound clips would be embedded here."},
	"video":   {"Video Content", "Video player and multimedia content would be embedded here."},
	"files":   {"Downloadable Files", "Document downloads and file attachments would be available here."},
	"widgets": {"Interactive Widgets", "Interactive components and embedded widgets would be available here."},
}

type section struct {
	Name    string
	Heading string
	Body    string
}

type navLink struct {
	Name  string
	Label string
}

type pageView struct {
	Title        string
	SiteName     string
	Description  string
	Keywords     string
	Tags         []string
	TokenID      string
	PageID       string
	Badges       []string
	Content      string
	Sections     []section
	Navigation   bool
	NavLinks     []navLink
	Monetization bool
	Generated    string
}

// Metadata is the page.json document published next to index.html.
type Metadata struct {
	ID          string         `json:"id"`
	TokenID     string         `json:"tokenId"`
	Title       string         `json:"title"`
	Slug        string         `json:"slug"`
	Tags        []string       `json:"tags"`
	Features    model.Features `json:"features"`
	Timestamp   int64          `json:"timestamp"`
	PublishedAt int64          `json:"publishedAt"`
}

// Artifact is a rendered page: the HTML document and its metadata, stored
// under storage.ArtifactKey for download.
type Artifact struct {
	PageID     string `json:"pageId"`
	Title      string `json:"title"`
	Slug       string `json:"slug"`
	URL        string `json:"url"`
	PagesRoot  string `json:"pagesRoot"`
	HTML       string `json:"html"`
	Metadata   string `json:"metadata"`
	RenderedAt int64  `json:"renderedAt"`
	CommitRef  string `json:"commitRef,omitempty"`
}

// File is one downloadable file of a rendered page.
type File struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Files returns index.html and page.json with paths relative to the pages root.
func (a Artifact) Files() []File {
	dir := "pages/" + a.Slug + "/"
	return []File{
		{Name: "index.html", Path: dir + "index.html", Content: a.HTML},
		{Name: "page.json", Path: dir + "page.json", Content: a.Metadata},
	}
}

// RepoPath maps a pages-root relative path to its location in the repository.
func RepoPath(pagesRoot, rel string) string {
	if pagesRoot == "/docs" {
		return "docs/" + rel
	}
	return rel
}

// PageSlug is the slug a page publishes under. Titles that slug to nothing
// fall back to the lower-cased page id.
func PageSlug(p model.BuildPage) string {
	if s := model.Slug(p.Title); s != "" {
		return s
	}
	return strings.ToLower(p.ID)
}

// Render produces the artifact for page under cfg. publishedAt is recorded
// in the metadata.
func Render(p model.BuildPage, cfg site.Config, publishedAt int64) (Artifact, error) {
	slug := PageSlug(p)

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, newPageView(p, cfg.SiteName)); err != nil {
		return Artifact{}, fmt.Errorf("rendering page %s: %w", p.ID, err)
	}

	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	meta, err := json.MarshalIndent(Metadata{
		ID:          p.ID,
		TokenID:     p.TokenID,
		Title:       p.Title,
		Slug:        slug,
		Tags:        tags,
		Features:    p.Features,
		Timestamp:   p.Timestamp,
		PublishedAt: publishedAt,
	}, "", "  ")
	if err != nil {
		return Artifact{}, fmt.Errorf("encoding metadata for %s: %w", p.ID, err)
	}

	return Artifact{
		PageID:     p.ID,
		Title:      p.Title,
		Slug:       slug,
		URL:        cfg.PageURL(slug),
		PagesRoot:  cfg.PagesRoot,
		HTML:       buf.String(),
		Metadata:   string(meta),
		RenderedAt: publishedAt,
	}, nil
}

func newPageView(p model.BuildPage, siteName string) pageView {
	v := pageView{
		Title:        p.Title,
		SiteName:     siteName,
		Description:  truncate(p.Content, descriptionLimit),
		Keywords:     strings.Join(p.Tags, ", "),
		Tags:         p.Tags,
		TokenID:      p.TokenID,
		PageID:       p.ID,
		Content:      p.Content,
		Navigation:   p.Features.Navigation,
		Monetization: p.Features.Monetization,
		Generated:    time.UnixMilli(p.Timestamp).UTC().Format("January 2, 2006"),
	}

	for _, name := range p.Features.Enabled() {
		v.Badges = append(v.Badges, strings.ToUpper(name[:1])+name[1:])
		c, ok := sectionCopy[name]
		if !ok {
			continue
		}
		v.Sections = append(v.Sections, section{Name: name, Heading: c[0], Body: c[1]})
		if name != "files" && name != "widgets" {
			v.NavLinks = append(v.NavLinks, navLink{Name: name, Label: strings.ToUpper(name[:1]) + name[1:]})
		}
	}
	return v
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
