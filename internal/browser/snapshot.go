package browser

import (
	"encoding/json"
	"fmt"
)

// PageSnapshot is an immutable view of the live page at one instant.
// It is produced fresh on every call and never cached across actions.
type PageSnapshot struct {
	URL      string
	Title    string
	HTML     string // raw document markup, input to the fingerprint engine
	Tree     string // indented structural+textual representation
	Elements []Element
}

// Element is one interactive element found by the snapshot script.
// The ID maps back to a data-softlight-id attribute set on the live node.
type Element struct {
	ID        int    `json:"id"`
	Role      string `json:"role"` // button, link, input
	Kind      string `json:"kind"` // search, checkbox, radio, submit, ""
	Label     string `json:"label"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	InModal   bool   `json:"inModal"`
	InHeader  bool   `json:"inHeader"`
	BelowFold bool   `json:"belowFold"`
	Visible   bool   `json:"visible"`
}

// ElementByID returns the element with the given snapshot ID, if present.
func (s *PageSnapshot) ElementByID(id int) (Element, bool) {
	for _, el := range s.Elements {
		if el.ID == id {
			return el, true
		}
	}
	return Element{}, false
}

// snapshotResult is the JSON payload returned by snapshotScript.
type snapshotResult struct {
	Tree     string    `json:"tree"`
	Elements []Element `json:"elements"`
}

func parseSnapshotResult(raw string) (*snapshotResult, error) {
	var res snapshotResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, fmt.Errorf("parse snapshot payload: %w", err)
	}
	return &res, nil
}

// snapshotScript walks the DOM, tags every interactive element with a
// data-softlight-id attribute and returns a JSON string with the textual
// tree plus structured element records. Elements below the fold are kept
// (the analyzer decides whether scrolling is needed) but flagged.
const snapshotScript = `() => {
	let idCounter = 1;
	const interactiveTags = new Set(['a', 'button', 'input', 'textarea', 'select', 'details', 'summary']);
	const elements = [];

	document.querySelectorAll('[data-softlight-id]').forEach(el => el.removeAttribute('data-softlight-id'));

	function cleanText(text) {
		if (!text) return '';
		let res = text.replace(/\s+/g, ' ').trim();
		if (res.length > 100) {
			return res.slice(0, 100) + '...';
		}
		return res;
	}

	function isRendered(el) {
		if (!el || !el.getBoundingClientRect) return false;
		if (el.getAttribute('aria-hidden') === 'true') return false;
		const rect = el.getBoundingClientRect();
		const style = window.getComputedStyle(el);
		return rect.width > 0 && rect.height > 0 &&
			style.visibility !== 'hidden' &&
			style.display !== 'none' &&
			style.opacity !== '0';
	}

	function inViewport(el) {
		const rect = el.getBoundingClientRect();
		return rect.top < window.innerHeight && rect.bottom > 0 &&
			rect.left < window.innerWidth && rect.right > 0;
	}

	function isInteractive(el) {
		const tag = el.tagName.toLowerCase();
		const role = (el.getAttribute('role') || '').toLowerCase();
		const tabIndex = el.getAttribute('tabindex');
		return interactiveTags.has(tag) ||
			role === 'button' ||
			role === 'link' ||
			role === 'checkbox' ||
			role === 'menuitem' ||
			role === 'tab' ||
			role === 'textbox' ||
			role === 'combobox' ||
			role === 'searchbox' ||
			(tabIndex !== null && tabIndex !== '-1') ||
			el.onclick != null;
	}

	function getRole(el) {
		const tag = el.tagName.toLowerCase();
		const role = (el.getAttribute('role') || '').toLowerCase();
		if (tag === 'button' || role === 'button') return 'button';
		if (tag === 'a' || role === 'link') return 'link';
		if (tag === 'input' || tag === 'textarea' || tag === 'select' ||
			role === 'textbox' || role === 'combobox' || role === 'searchbox') return 'input';
		return 'button';
	}

	function getKind(el) {
		const role = (el.getAttribute('role') || '').toLowerCase();
		const type = (el.getAttribute('type') || '').toLowerCase();
		const name = (el.getAttribute('name') || '').toLowerCase();
		const placeholder = (el.getAttribute('placeholder') || '').toLowerCase();
		const ariaLabel = (el.getAttribute('aria-label') || '').toLowerCase();

		if (type === 'submit') return 'submit';
		if (type === 'checkbox') return 'checkbox';
		if (type === 'radio') return 'radio';
		if (type === 'search' || role === 'searchbox' ||
			name === 'q' || name === 'query' || name.includes('search') ||
			placeholder.includes('search') || ariaLabel.includes('search')) {
			return 'search';
		}
		const tag = el.tagName.toLowerCase();
		if (tag === 'input' || tag === 'textarea') {
			// Credential detection needs the concrete input type; a bare
			// <input> defaults to text.
			return type || 'text';
		}
		return '';
	}

	function inModal(el) {
		let cur = el;
		while (cur && cur !== document.body) {
			const role = (cur.getAttribute('role') || '').toLowerCase();
			const cls = (cur.className && cur.className.toLowerCase) ? cur.className.toLowerCase() : '';
			if (role === 'dialog' || role === 'alertdialog' ||
				cur.getAttribute('aria-modal') === 'true' ||
				cls.includes('modal') || cls.includes('overlay')) {
				return true;
			}
			cur = cur.parentElement;
		}
		return false;
	}

	function inHeader(el) {
		let cur = el;
		while (cur && cur !== document.body) {
			const tag = cur.tagName.toLowerCase();
			const role = (cur.getAttribute('role') || '').toLowerCase();
			const cls = (cur.className && cur.className.toLowerCase) ? cur.className.toLowerCase() : '';
			if (tag === 'header' || tag === 'nav' || role === 'banner' || role === 'navigation' ||
				cls.includes('header') || cls.includes('navbar')) {
				return true;
			}
			cur = cur.parentElement;
		}
		return false;
	}

	function getLabel(el) {
		const tag = el.tagName.toLowerCase();
		let label = cleanText(el.innerText || el.textContent || '');
		if (!label) label = cleanText(el.getAttribute('aria-label') || '');
		if (!label) label = cleanText(el.getAttribute('title') || '');
		if ((tag === 'input' || tag === 'textarea') && !label) {
			label = cleanText(el.getAttribute('placeholder') || '');
		}
		if ((tag === 'input' || tag === 'textarea') && !label) {
			label = cleanText(el.getAttribute('name') || '');
		}
		return label;
	}

	function escapeAttr(value) {
		return value.replace(/"/g, '\\"');
	}

	// The highest z-index focus container wins. Custom overlay widgets can
	// be misclassified here; this is a tunable heuristic, not a guarantee.
	function findActiveModal() {
		const selectors = ['[role="dialog"]', '[role="alertdialog"]', '[aria-modal="true"]', '.modal', '.overlay'];
		const candidates = Array.from(document.querySelectorAll(selectors.join(',')));
		let best = null;
		let bestZ = -Infinity;
		for (const el of candidates) {
			if (!isRendered(el) || !inViewport(el)) continue;
			const style = window.getComputedStyle(el);
			let z = parseInt(style.zIndex || '0', 10);
			if (Number.isNaN(z)) z = 0;
			if (z >= bestZ) {
				bestZ = z;
				best = el;
			}
		}
		return best;
	}

	const activeModal = findActiveModal();
	let header = activeModal ? "=== ACTIVE DIALOG ===\n" : "";

	function traverse(node, depth) {
		if (!node) return '';
		if (depth > 20) return '';

		if (node.nodeType === Node.TEXT_NODE) {
			const text = cleanText(node.textContent);
			if (text.length > 2) {
				return '  '.repeat(depth) + text + '\n';
			}
			return '';
		}

		if (node.nodeType !== Node.ELEMENT_NODE) return '';

		const el = node;
		if (!isRendered(el)) return '';

		let output = '';
		const prefix = '  '.repeat(depth);
		const tag = el.tagName.toLowerCase();

		if (['script', 'style', 'svg', 'path', 'noscript'].includes(tag)) return '';

		if (isInteractive(el)) {
			const aiId = idCounter++;
			el.setAttribute('data-softlight-id', String(aiId));

			const rect = el.getBoundingClientRect();
			const record = {
				id: aiId,
				role: getRole(el),
				kind: getKind(el),
				label: getLabel(el),
				x: Math.round(rect.left),
				y: Math.round(rect.top + window.scrollY),
				inModal: inModal(el),
				inHeader: inHeader(el),
				belowFold: rect.top >= window.innerHeight,
				visible: inViewport(el)
			};
			elements.push(record);

			const parts = ['<' + tag];
			if (record.label) parts.push('label="' + escapeAttr(record.label) + '"');
			if (record.kind) parts.push('kind="' + record.kind + '"');
			if (record.inModal) parts.push('context="dialog"');
			if (record.inHeader) parts.push('region="header"');
			if (tag === 'input' || tag === 'textarea') {
				const val = cleanText(el.value);
				if (val) parts.push('value="' + escapeAttr(val) + '"');
			}
			output += prefix + '[' + aiId + '] ' + parts.join(' ') + '>\n';
		} else if (['h1','h2','h3','h4','h5'].includes(tag)) {
			output += prefix + '<' + tag + '> ' + cleanText(el.innerText) + '\n';
		}

		for (const child of el.childNodes) {
			output += traverse(child, depth+1);
		}

		return output;
	}

	const tree = header + traverse(document.body, 0);
	return JSON.stringify({ tree: tree, elements: elements });
}`
