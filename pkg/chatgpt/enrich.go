package chatgpt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/scrapelesshq/LLM-chat-scraper/pkg/browser"
	"github.com/scrapelesshq/LLM-chat-scraper/pkg/logging"
	"github.com/scrapelesshq/LLM-chat-scraper/pkg/task"
)

// quoteJS renders s as a JavaScript string literal.
func quoteJS(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

// isolated runs one enrichment stage in its own failure scope. A fault or
// panic inside the stage degrades its contribution to nothing and never
// touches the pipeline or the other stages' results.
func (p *pipeline) isolated(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Debug(logging.CategoryExtract, name+"_panicked", fmt.Sprintf("%s stage recovered", name), map[string]any{
				"panic": fmt.Sprint(r),
			})
		}
	}()
	if err := fn(); err != nil {
		p.log.Debug(logging.CategoryExtract, name+"_degraded", fmt.Sprintf("%s stage degraded to empty", name), map[string]any{
			"error": err.Error(),
		})
	}
}

// collectImageCards opens the image light-box when a thumbnail exists and
// enumerates its images.
func (p *pipeline) collectImageCards(ctx context.Context) []task.ImageCard {
	var cards []task.ImageCard
	p.isolated("image_cards", func() error {
		var present bool
		if err := p.page.Evaluate(ctx, "!!document.querySelector("+quoteJS(selImageCards)+")", &present); err != nil {
			return err
		}
		if !present {
			p.log.Debug(logging.CategoryExtract, "image_cards_absent", "no image cards found", nil)
			return nil
		}
		if err := p.page.Click(ctx, selImageCards); err != nil {
			return err
		}
		if err := p.page.WaitForSelector(ctx, selImageCardsLightbox, selectorTimeout); err != nil {
			return err
		}
		script := `Array.from(document.querySelectorAll(` + quoteJS(selImageCardsLightbox) + `)).map((el, i) => ({
  position: i + 1,
  url: el.getAttribute('src') || '',
}));`
		if err := p.page.Evaluate(ctx, script, &cards); err != nil {
			cards = nil
			return err
		}
		if err := p.page.WaitForSelector(ctx, selImageCardsLightboxExit, selectorTimeout); err != nil {
			return err
		}
		return p.page.Click(ctx, selImageCardsLightboxExit)
	})
	return cards
}

// collectProducts walks the recommended-product thumbnails. Clicking one
// either spawns a new tab (external product page) or slides in a detail
// panel; both are harvested.
func (p *pipeline) collectProducts(ctx context.Context) []task.Product {
	var products []task.Product
	p.isolated("products", func() error {
		var count int
		if err := p.page.Evaluate(ctx, "document.querySelectorAll("+quoteJS(selRecommendProducts)+").length", &count); err != nil {
			return err
		}
		if count == 0 {
			p.log.Debug(logging.CategoryExtract, "products_absent", "no recommended products found", nil)
			return nil
		}

		lastURL := ""
		for i := 0; i < count; i++ {
			if p.token.Aborted() {
				return nil
			}

			spawned := p.awaitSpawnedTab(ctx, func() error {
				click := fmt.Sprintf(`(() => {
  const el = document.querySelectorAll(%s)[%d];
  if (el) el.click();
})();`, quoteJS(selRecommendProducts), i)
				return p.page.Evaluate(ctx, click, nil)
			})

			if spawned != "" {
				info, err := p.browser.TargetInfo(ctx, spawned)
				if err == nil {
					products = append(products, task.Product{URL: info.URL, Title: info.Title, ImageURLs: []string{}})
				}
				if err := p.browser.CloseTarget(ctx, spawned); err != nil {
					p.log.Debug(logging.CategoryExtract, "product_tab_close_failed", "spawned tab close failed", map[string]any{
						"error": err.Error(),
					})
				}
				continue
			}

			if err := p.page.WaitForSelector(ctx, selProductDetailLink, selectorTimeout); err != nil {
				return err
			}
			for poll := 0; poll < productDetailMaxPolls; poll++ {
				var href string
				if err := p.page.Evaluate(ctx, `document.querySelector(`+quoteJS(selProductDetailLink)+`)?.getAttribute('href') || ''`, &href); err != nil {
					return err
				}
				if href != "" && href != lastURL {
					lastURL = href
					break
				}
				p.jitter(jitterDetailPoll.lo, jitterDetailPoll.hi)
			}

			detail := `(() => {
  const el = document.querySelector(` + quoteJS(selProductDetails) + `);
  if (!el) return null;
  return {
    title: el.querySelector('div.text-xl')?.textContent || '',
    image_urls: Array.from(el.querySelectorAll('.no-scrollbar img')).map((img) => img.getAttribute('src') || ''),
  };
})();`
			var panel *struct {
				Title     string   `json:"title"`
				ImageURLs []string `json:"image_urls"`
			}
			if err := p.page.Evaluate(ctx, detail, &panel); err != nil {
				return err
			}
			if panel != nil {
				products = append(products, task.Product{URL: lastURL, Title: panel.Title, ImageURLs: panel.ImageURLs})
			}
		}
		return p.page.Click(ctx, selCloseButton)
	})
	return products
}

// awaitSpawnedTab clicks via action and gives a short window for a new
// page target whose opener is the task page to appear. The subscription is
// deregistered at the end of the window so it never leaks into later
// stages. Returns the spawned target id, or "" when the click stayed
// in-page.
func (p *pipeline) awaitSpawnedTab(ctx context.Context, action func() error) string {
	var mu sync.Mutex
	spawned := ""
	cancel := p.browser.OnTargetOpened(func(info browser.TargetInfo) {
		if info.Type != "page" || info.OpenerID != p.page.TargetID() {
			return
		}
		mu.Lock()
		if spawned == "" {
			spawned = info.TargetID
		}
		mu.Unlock()
	})
	defer cancel()

	if err := action(); err != nil {
		p.log.Debug(logging.CategoryExtract, "product_click_failed", "product click failed", map[string]any{
			"error": err.Error(),
		})
		return ""
	}
	p.jitter(jitterSpawnWindow.lo, jitterSpawnWindow.hi)

	mu.Lock()
	defer mu.Unlock()
	return spawned
}

// collectCitations opens the citations panel when its entrance button is
// present and harvests the structured link entries. A missing entrance
// means the answer has no citations, not a fault.
func (p *pipeline) collectCitations(ctx context.Context) []task.Citation {
	var citations []task.Citation
	p.isolated("citations", func() error {
		if err := p.page.BringToFront(ctx); err != nil {
			return err
		}
		if err := p.page.WaitForSelector(ctx, selCitationsEntrance, citationsEntranceTimeout); err != nil {
			if errors.Is(err, browser.ErrSelectorTimeout) {
				p.log.Debug(logging.CategoryExtract, "citations_absent", "no citations found", nil)
				return nil
			}
			return err
		}
		if err := p.page.Click(ctx, selCitationsEntrance); err != nil {
			return err
		}
		if err := p.page.WaitForSelector(ctx, selCitationsLinks, selectorTimeout); err != nil {
			return err
		}
		script := `Array.from(document.querySelectorAll(` + quoteJS(selCitationsLinks) + `)).map((el) => ({
  url: el.href || '',
  icon: el.querySelector('img')?.getAttribute('src') || '',
  title: el.querySelector('div:nth-child(2)')?.textContent || '',
  description: el.querySelector('div:nth-child(3)')?.textContent || '',
}));`
		if err := p.page.Evaluate(ctx, script, &citations); err != nil {
			citations = nil
			return err
		}
		return p.page.Click(ctx, selCloseButton)
	})
	return citations
}

// collectAttachedLinks harvests every inline link from the rendered
// answer. Best effort; empty on failure.
func (p *pipeline) collectAttachedLinks(ctx context.Context) []task.LinkAttached {
	var links []task.LinkAttached
	p.isolated("attached_links", func() error {
		var markup string
		script := `document.querySelector(` + quoteJS(selMarkdownBody) + `)?.innerHTML || ''`
		if err := p.page.Evaluate(ctx, script, &markup); err != nil {
			return err
		}
		if markup == "" {
			return nil
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
		if err != nil {
			return err
		}
		doc.Find("a").Each(func(i int, sel *goquery.Selection) {
			href, _ := sel.Attr("href")
			links = append(links, task.LinkAttached{
				Position: i + 1,
				Text:     strings.TrimSpace(sel.Text()),
				URL:      href,
			})
		})
		return nil
	})
	return links
}
