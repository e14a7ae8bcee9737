package browser

import "strconv"

// collectorScript walks the top document and every same-origin iframe and
// returns one JSON string: url, title, viewport, main region and the element
// list. Element rects are absolute document pixels of the top frame.
func collectorScript(maxElements int) string {
	return `(() => {
	const maxElements = ` + strconv.Itoa(maxElements) + `;
	try {
		const sx = window.scrollX, sy = window.scrollY;
		const vw = window.innerWidth, vh = window.innerHeight;
		const result = [];
		const seen = new Set();

		const interactive = [
			'a', 'button', 'input', 'select', 'textarea', 'summary',
			'[role="button"]', '[role="link"]', '[role="menuitem"]', '[role="menuitemcheckbox"]',
			'[role="menuitemradio"]', '[role="tab"]', '[role="option"]', '[onclick]',
			'[tabindex]:not([tabindex="-1"])',
		].join(',');

		const generateSelector = (el) => {
			const tag = el.tagName.toLowerCase();

			const qaAttrs = ['data-test-id', 'data-testid', 'data-test', 'data-qa', 'data-cy'];
			for (const attr of qaAttrs) {
				const val = el.getAttribute(attr);
				if (val) return tag + '[' + attr + '="' + CSS.escape(val) + '"]';
			}

			if (el.id && /^[a-zA-Z]/.test(el.id) && !el.id.includes(' ')) {
				return '#' + CSS.escape(el.id);
			}

			if (el.name && ['input', 'select', 'textarea', 'button'].includes(tag)) {
				return tag + '[name="' + CSS.escape(el.name) + '"]';
			}

			const ariaLabel = el.getAttribute('aria-label');
			if (ariaLabel && ariaLabel.length < 80) {
				return tag + '[aria-label="' + CSS.escape(ariaLabel) + '"]';
			}

			const path = [];
			let current = el;
			let depth = 0;
			while (current && current.tagName && depth < 4) {
				const t = current.tagName.toLowerCase();
				if (current.id && /^[a-zA-Z]/.test(current.id)) {
					path.unshift('#' + CSS.escape(current.id));
					break;
				}
				const index = Array.from(current.parentNode?.children || []).indexOf(current);
				path.unshift(index >= 0 ? t + ':nth-child(' + (index + 1) + ')' : t);
				current = current.parentElement;
				depth++;
			}
			return path.join(' > ');
		};

		const textOf = (el) => {
			let txt = el.getAttribute('aria-label') || '';
			if (!txt && el.value && typeof el.value === 'string' && el.type !== 'password') txt = el.value;
			if (!txt) txt = el.innerText || el.textContent || '';
			if (!txt) txt = el.getAttribute('title') || el.getAttribute('placeholder') || el.getAttribute('alt') || '';
			txt = txt.replace(/\s+/g, ' ').trim();
			return txt.length > 200 ? txt.substring(0, 200) : txt;
		};

		const isButton = (el, tag, role) => {
			if (tag === 'button' || tag === 'summary' || role === 'button') return true;
			return tag === 'input' && ['button', 'submit', 'reset', 'image'].includes((el.type || '').toLowerCase());
		};

		const collect = (doc, offsetX, offsetY, frame) => {
			const win = doc.defaultView;
			for (const el of doc.querySelectorAll(interactive)) {
				if (result.length >= maxElements) return;
				if (seen.has(el) || el.closest('[data-webguide]')) continue;
				seen.add(el);

				const rect = el.getBoundingClientRect();
				if (rect.width <= 0 || rect.height <= 0) continue;

				const style = win.getComputedStyle(el);
				const visible = style.display !== 'none' &&
					style.visibility !== 'hidden' &&
					parseFloat(style.opacity || '1') > 0;

				const tag = el.tagName.toLowerCase();
				const role = (el.getAttribute('role') || '').toLowerCase();
				const cls = typeof el.className === 'string' ? el.className : (el.getAttribute('class') || '');

				result.push({
					tag: tag,
					text: textOf(el),
					role: role,
					id: el.id || '',
					class: cls.substring(0, 120),
					selector: generateSelector(el),
					isButton: isButton(el, tag, role),
					inNav: !!el.closest('nav, [role="navigation"], aside'),
					inHeader: !!el.closest('header, [role="banner"]'),
					visible: visible,
					styleHints: {
						backgroundColor: style.backgroundColor,
						color: style.color,
						cursor: style.cursor,
					},
					rect: {
						x: rect.left + offsetX + sx,
						y: rect.top + offsetY + sy,
						width: rect.width,
						height: rect.height,
					},
					frame: frame,
				});
			}

			for (const iframe of doc.querySelectorAll('iframe')) {
				let inner = null;
				try {
					inner = iframe.contentDocument;
				} catch (e) {
					inner = null;
				}
				if (!inner || !inner.documentElement) continue;
				const r = iframe.getBoundingClientRect();
				collect(inner, offsetX + r.left + iframe.clientLeft, offsetY + r.top + iframe.clientTop, generateSelector(iframe));
			}
		};

		collect(document, 0, 0, '');

		const mainEl = document.querySelector('main, [role="main"]');
		let main = null;
		if (mainEl) {
			const r = mainEl.getBoundingClientRect();
			if (r.width > 0 && r.width < vw * 0.98) {
				main = {mainLeft: r.left + sx, mainRight: r.right + sx};
			}
		}

		return JSON.stringify({
			url: location.href,
			title: document.title,
			viewport: {
				scrollX: sx,
				scrollY: sy,
				viewportWidth: vw,
				viewportHeight: vh,
				devicePixelRatio: window.devicePixelRatio || 1,
			},
			layout: main,
			elements: result,
		});
	} catch (e) {
		return JSON.stringify({error: String(e && e.message || e)});
	}
})()`
}

// viewportScript reads the live viewport of the top frame.
const viewportScript = `(() => JSON.stringify({
	scrollX: window.scrollX,
	scrollY: window.scrollY,
	viewportWidth: window.innerWidth,
	viewportHeight: window.innerHeight,
	devicePixelRatio: window.devicePixelRatio || 1,
}))()`
