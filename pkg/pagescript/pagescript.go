// Package pagescript builds the JavaScript snippets injected into remote
// pages. The scripts are plain strings so they can be unit tested without
// a browser.
package pagescript

import "fmt"

// ClockSkew returns a page-initialization script that replaces the page's
// Date with one pinned offsetDays in the past. Pinning the clock before
// any site script runs masks the automation fingerprint of a freshly
// provisioned profile. The offset is a parameter so tests are
// deterministic.
func ClockSkew(offsetDays int) string {
	return fmt.Sprintf(`(() => {
  const offsetMs = %d * 24 * 60 * 60 * 1000;
  const OriginalDate = Date;
  const fixedEpoch = OriginalDate.now() - offsetMs;

  class SkewedDate extends OriginalDate {
    constructor(...args) {
      if (args.length === 0) {
        super(fixedEpoch);
        return;
      }
      super(...args);
    }
    static now() {
      return fixedEpoch;
    }
    static parse(str) {
      return OriginalDate.parse(str);
    }
    static UTC(...args) {
      return OriginalDate.UTC(...args);
    }
  }

  for (const prop of Object.getOwnPropertyNames(OriginalDate)) {
    if (!(prop in SkewedDate)) {
      SkewedDate[prop] = OriginalDate[prop];
    }
  }
  window.Date = SkewedDate;
})();`, offsetDays)
}

// ClickShield returns a script that appends a full-viewport transparent
// overlay so remaining automated interaction cannot land on page controls.
func ClickShield() string {
	return `(() => {
  const element = document.createElement('div');
  element.style.position = 'fixed';
  element.style.top = '0';
  element.style.left = '0';
  element.style.width = '100%';
  element.style.height = '100%';
  element.style.zIndex = '1000';
  document.body.appendChild(element);
})();`
}
