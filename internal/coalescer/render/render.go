// Package render builds the HTML and plain-text bodies sent by the
// Delivery Coalescer, using Liquid templates with a parse cache
// (spec.md §4.7 "Rendering").
package render

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/osteele/liquid"
)

// ItemView is one rendered line item inside an email.
type ItemView struct {
	ItemID  string
	GoalID  string
	Channel string
	Title   string
	Snippet string
	URL     string
}

// Engine wraps a Liquid engine with a parsed-template cache, mirroring
// the teacher's template service shape.
type Engine struct {
	engine        *liquid.Engine
	redirectorURL string

	mu    sync.Mutex
	cache map[string]*liquid.Template
}

// NewEngine builds a render Engine. redirectorURL is the base click
// redirector, e.g. "https://app.example.com/r" (spec.md §4.7, §6).
func NewEngine(redirectorURL string) *Engine {
	return &Engine{
		engine:        liquid.NewEngine(),
		redirectorURL: redirectorURL,
		cache:         make(map[string]*liquid.Template),
	}
}

// RewriteLink rewrites an item's URL to the click redirector so clicks
// are captured as ClickEvent rows (spec.md §4.7, §6).
func (e *Engine) RewriteLink(itemID, goalID, channel string) string {
	v := url.Values{}
	v.Set("item", itemID)
	v.Set("goal", goalID)
	v.Set("c", channel)
	return fmt.Sprintf("%s?%s", e.redirectorURL, v.Encode())
}

// Render compiles (with caching, keyed by cacheKey) and renders a
// Liquid template against the given context.
func (e *Engine) Render(cacheKey, templateStr string, ctx map[string]interface{}) (string, error) {
	e.mu.Lock()
	tpl, ok := e.cache[cacheKey]
	e.mu.Unlock()

	if !ok {
		var err error
		tpl, err = e.engine.ParseString(templateStr)
		if err != nil {
			return "", fmt.Errorf("render: parse %q: %w", cacheKey, err)
		}
		if cacheKey != "" {
			e.mu.Lock()
			e.cache[cacheKey] = tpl
			e.mu.Unlock()
		}
	}

	out, err := tpl.RenderString(ctx)
	if err != nil {
		return "", fmt.Errorf("render: render %q: %w", cacheKey, err)
	}
	return out, nil
}

// BuildItemViews attaches a redirector link to each item for template
// consumption.
func (e *Engine) BuildItemViews(channel string, raw []ItemView) []ItemView {
	out := make([]ItemView, len(raw))
	for i, v := range raw {
		v.URL = e.RewriteLink(v.ItemID, v.GoalID, channel)
		out[i] = v
	}
	return out
}

// DefaultHTMLTemplate is the baseline digest/batch/immediate HTML body.
const DefaultHTMLTemplate = `<html><body>
<h2>{{ heading }}</h2>
<ul>
{% for item in items %}
  <li><a href="{{ item.URL }}">{{ item.Title }}</a>{% if item.Snippet %} — {{ item.Snippet }}{% endif %}</li>
{% endfor %}
</ul>
</body></html>`

// DefaultTextTemplate is the plain-text counterpart to
// DefaultHTMLTemplate (multi-part sends per spec.md §6).
const DefaultTextTemplate = `{{ heading }}

{% for item in items %}- {{ item.Title }} ({{ item.URL }})
{% endfor %}`
