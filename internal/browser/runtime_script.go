package browser

const (
	emitBinding = "__webguideEmit"
)

// runtimeScript installs window.__webguide once per document. It owns every
// node it creates (marked data-webguide) and keeps anchors as WeakRefs so
// the page can collect them freely. Page events are reported through the
// exposed __webguideEmit binding as JSON strings.
const runtimeScript = `(() => {
	if (window.top !== window || window.__webguide) return;

	const ROOT_ATTR = 'data-webguide';
	const anchors = new Map();
	let seq = 0;
	let root = null;
	let placed = [];
	let scheduled = false;
	let pending = new Set();
	let scrollWatchers = [];

	const emit = (kind, extra) => {
		const fn = window.__webguideEmit;
		if (typeof fn !== 'function') return;
		try {
			fn(JSON.stringify(Object.assign({kind: kind, url: location.href, at: Date.now()}, extra || {})));
		} catch (e) {}
	};

	const schedule = (kind) => {
		pending.add(kind);
		if (scheduled) return;
		scheduled = true;
		requestAnimationFrame(() => {
			scheduled = false;
			const kinds = Array.from(pending);
			pending = new Set();
			for (const k of kinds) emit(k);
		});
	};

	const ensureRoot = () => {
		if (root && root.isConnected) return root;
		root = document.createElement('div');
		root.setAttribute(ROOT_ATTR, 'root');
		Object.assign(root.style, {
			position: 'fixed', left: '0', top: '0', width: '0', height: '0',
			pointerEvents: 'none', zIndex: '2147483647',
		});
		(document.body || document.documentElement).appendChild(root);
		return root;
	};

	const isOwn = (el) => !!(el && el.closest && el.closest('[' + ROOT_ATTR + ']'));

	const interactiveAncestor = (el) =>
		(el.closest && el.closest('a,button,summary,input,select,textarea,label,[role="button"],[role="link"],[role="menuitem"],[role="tab"],[role="option"]')) || el;

	// hit descends into same-origin iframes and returns the element under
	// (x, y) of the top viewport together with its host iframe.
	const hit = (doc, x, y, host) => {
		const stack = doc.elementsFromPoint(x, y).filter((el) => !isOwn(el));
		const el = stack[0];
		if (!el) return null;
		if (el.tagName === 'IFRAME') {
			let inner = null;
			try {
				inner = el.contentDocument;
			} catch (e) {
				inner = null;
			}
			if (inner) {
				const r = el.getBoundingClientRect();
				const found = hit(inner, x - r.left - el.clientLeft, y - r.top - el.clientTop, el);
				if (found) return found;
			}
		}
		return {el: interactiveAncestor(el), host: host};
	};

	const bySelector = (selector) => {
		if (!selector) return null;
		try {
			const el = document.querySelector(selector);
			return el ? {el: el, host: null} : null;
		} catch (e) {
			return null;
		}
	};

	const liveRect = (entry) => {
		const el = entry.ref.deref();
		if (!el || !el.isConnected) return null;
		let dx = 0, dy = 0;
		if (entry.host) {
			const host = entry.host.deref();
			if (!host || !host.isConnected) return null;
			let doc = null;
			try {
				doc = host.contentDocument;
			} catch (e) {
				doc = null;
			}
			if (doc !== el.ownerDocument) return null;
			const hr = host.getBoundingClientRect();
			dx = hr.left + host.clientLeft;
			dy = hr.top + host.clientTop;
		}
		const r = el.getBoundingClientRect();
		if (r.width <= 0 || r.height <= 0) return null;
		return {x: r.left + dx, y: r.top + dy, width: r.width, height: r.height};
	};

	// watchScrollAncestor binds the nearest scrollable ancestor of el. Every
	// binding is kept so unwatchScroll can remove it again.
	const watchScrollAncestor = (el) => {
		for (let p = el.parentElement; p; p = p.parentElement) {
			const s = getComputedStyle(p);
			if (!/(auto|scroll|overlay)/.test(s.overflow + s.overflowX + s.overflowY)) continue;
			if (scrollWatchers.some((w) => w.el === p)) return;
			const handler = () => schedule('scroll');
			p.addEventListener('scroll', handler, {passive: true});
			scrollWatchers.push({el: p, handler: handler});
			return;
		}
	};

	const unwatchScroll = () => {
		for (const w of scrollWatchers) w.el.removeEventListener('scroll', w.handler, {passive: true});
		scrollWatchers = [];
	};

	const draw = (list) => {
		const r = ensureRoot();
		while (r.firstChild) r.removeChild(r.firstChild);
		for (const p of list) {
			const box = document.createElement('div');
			box.setAttribute(ROOT_ATTR, 'box');
			Object.assign(box.style, {
				position: 'fixed',
				left: p.rect.x + 'px', top: p.rect.y + 'px',
				width: p.rect.width + 'px', height: p.rect.height + 'px',
				border: '3px solid #ff5a1f', borderRadius: '6px',
				boxShadow: '0 0 0 4px rgba(255,90,31,0.25)', boxSizing: 'border-box',
			});
			r.appendChild(box);

			const label = document.createElement('div');
			label.setAttribute(ROOT_ATTR, 'label');
			label.textContent = p.label;
			Object.assign(label.style, {
				position: 'fixed',
				left: p.labelRect.rect.x + 'px', top: p.labelRect.rect.y + 'px',
				maxWidth: p.labelRect.rect.width + 'px',
				background: '#ff5a1f', color: '#fff', font: '13px/1.4 sans-serif',
				padding: '2px 8px', borderRadius: '4px', whiteSpace: 'normal',
			});
			r.appendChild(label);
		}
	};

	const api = {
		mount(list) {
			unwatchScroll();
			anchors.clear();
			placed = list;
			const bindings = list.map((p, i) => {
				const cx = p.rect.x + p.rect.width / 2;
				const cy = p.rect.y + p.rect.height / 2;
				const found = hit(document, cx, cy, null) || bySelector(p.selector);
				if (!found || !found.el || found.el === document.body || found.el === document.documentElement) {
					return {overlayIndex: i};
				}
				const id = 'wg-' + (++seq);
				anchors.set(id, {ref: new WeakRef(found.el), host: found.host ? new WeakRef(found.host) : null});
				watchScrollAncestor(found.host || found.el);
				return {overlayIndex: i, anchorId: id, hostFrameRef: found.host ? (found.host.id || found.host.name || 'iframe') : ''};
			});
			draw(list);
			return bindings;
		},
		place(list) {
			placed = list;
			draw(list);
			return true;
		},
		read(ids) {
			const out = {};
			for (const id of ids) {
				const entry = anchors.get(id);
				const rect = entry ? liveRect(entry) : null;
				if (!rect) {
					anchors.delete(id);
					out[id] = {live: false, rect: {x: 0, y: 0, width: 0, height: 0}};
					continue;
				}
				out[id] = {live: true, rect: rect};
			}
			return out;
		},
		clear() {
			unwatchScroll();
			anchors.clear();
			placed = [];
			if (root) root.remove();
			root = null;
			return true;
		},
		count() {
			return document.querySelectorAll('[' + ROOT_ATTR + '="box"]').length;
		},
	};

	window.addEventListener('click', (e) => {
		if (isOwn(e.target)) return;
		emit('click', {trusted: e.isTrusted});
	}, true);
	window.addEventListener('scroll', () => schedule('scroll'), {capture: true, passive: true});
	window.addEventListener('resize', () => schedule('resize'), {passive: true});
	window.addEventListener('popstate', () => emit('navigate', {trusted: true}));
	window.addEventListener('hashchange', () => emit('navigate', {trusted: true}));

	for (const name of ['pushState', 'replaceState']) {
		const original = history[name];
		history[name] = function () {
			const before = location.href;
			const ret = original.apply(this, arguments);
			if (location.href !== before) emit('navigate', {trusted: true});
			return ret;
		};
	}

	const observer = new MutationObserver((records) => {
		if (placed.length === 0) return;
		if (records.every((r) => isOwn(r.target))) return;
		schedule('mutation');
	});
	const observe = () => observer.observe(document.documentElement, {childList: true, subtree: true, attributes: true});
	if (document.documentElement) observe();
	else document.addEventListener('DOMContentLoaded', observe, {once: true});

	Object.defineProperty(window, '__webguide', {value: api, configurable: false, enumerable: false});
})()`

// runtimeCall invokes one runtime method with a JSON payload and returns the
// result as a JSON string, or null when the runtime is not installed yet.
const runtimeCall = `([method, payload]) => {
	const rt = window.__webguide;
	if (!rt) return null;
	return JSON.stringify(rt[method](payload === '' ? undefined : JSON.parse(payload)));
}`
