package chatgpt

import "time"

// BaseURL is the chat target. The full task URL carries the prompt as a
// query parameter plus a search hint when web search is enabled.
const BaseURL = "https://chatgpt.com"

// loginWallPrefix marks the authentication domain; any main-frame
// navigation landing here aborts the task.
const loginWallPrefix = "https://auth.openai.com"

const (
	// timeoutMultiplier widens every page-level timeout; the remote
	// browser runs behind residential proxies and loads slowly.
	timeoutMultiplier = 2

	navigateTimeout = 25 * time.Second * timeoutMultiplier
	selectorTimeout = 20 * time.Second * timeoutMultiplier

	// connectPollInterval paces the deadline checks racing the control
	// handshake.
	connectPollInterval = time.Second

	// watchInterval paces the completion-detection polls.
	watchInterval = 500 * time.Millisecond

	// stableWindow is how many consecutive marker-satisfied polls the
	// watcher needs before it treats the answer as final (~1.5s of
	// stability at the default interval).
	stableWindow = 3

	// citationsEntranceTimeout is short on purpose: a missing entrance
	// button means the answer simply has no citations.
	citationsEntranceTimeout = 3 * time.Second

	// productDetailMaxPolls bounds the wait for the detail panel's link
	// to change after clicking a product.
	productDetailMaxPolls = 30
)

// streamPattern matches the conversation endpoint whose response carries
// the raw model stream.
const streamPattern = "*conversation"

// Prompt composer candidates; first to resolve wins.
var composerSelectors = []string{
	"#prompt-textarea",
	`[placeholder="Ask anything"]`,
}

const (
	selCloseButton = `button[data-testid="close-button"]`

	selImageCards             = "div.no-scrollbar:has(button img) img"
	selImageCardsLightbox     = `div[data-testid="modal-image-gen-lightbox"] ol li img`
	selImageCardsLightboxExit = `div[data-testid="modal-image-gen-lightbox"] button`

	selRecommendProducts = "div.markdown div.relative > div.flex.flex-row:has(img):not(a) > div img"
	selProductDetails    = `section[screen-anchor="top"] div[slot="content"]`
	selProductDetailLink = selProductDetails + " span a"

	selCitationsEntrance = `button.group\/footnote`
	selCitationsLinks    = `section[screen-anchor="top"] div[slot="content"] a`

	selMarkdownBody = "div.markdown"
)

// errorBanners are the known failure messages the target renders in place
// of an answer. Any of them overrides a partially collected answer.
var errorBanners = []string{
	"Something went wrong while generating the response.",
	"Unusual activity has been detected from your device.",
	"An error occurred. Either the engine you requested does not exist or there was another issue processing your request.",
}

// watchScript samples the page for the completion heuristic: the text of
// the last assistant message, accepted only while more than one copy
// button is rendered (the extra button appears once generation finishes).
// Returns null when there is no accepted sample this poll.
const watchScript = `(() => {
  const messages = document.querySelectorAll('[data-message-author-role="assistant"]');
  const last = messages[messages.length - 1];
  if (!last) return null;
  const copyButtons = document.querySelectorAll('button[data-testid="copy-turn-action-button"]');
  if (copyButtons.length > 1) {
    return last.textContent || 'No content';
  }
  return null;
})();`
