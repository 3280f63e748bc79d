// internal/driver/js.go
package driver

// benchmarkIndexScript estimates how fast the host executes trivial JS. The
// result is iterations per ten milliseconds of a short string-append busy
// loop, giving a unitless index comparable across runs on the same scale.
const benchmarkIndexScript = `(() => {
	const start = performance.now();
	let iterations = 0;
	while (performance.now() - start < 500) {
		let s = '';
		for (let i = 0; i < 100000; i++) s += 'a';
		iterations++;
	}
	const duration = performance.now() - start;
	return Math.round(10000 * iterations / duration) / 10;
})()`

// fetchManifestScript resolves the page's manifest link and fetches its raw
// payload. It resolves to null when the page declares no manifest, and to an
// empty data string when the manifest exists but cannot be read.
const fetchManifestScript = `(async () => {
	const link = document.querySelector('link[rel="manifest"]');
	if (!link || !link.href) {
		return null;
	}
	try {
		const response = await fetch(link.href, {credentials: 'include'});
		if (!response.ok) {
			return {url: link.href, data: ''};
		}
		return {url: link.href, data: await response.text()};
	} catch (e) {
		return {url: link.href, data: ''};
	}
})()`

// awaitFirstPaintScript resolves once a first-contentful-paint entry has been
// observed. The buffered flag covers paints that happened before the observer
// was installed.
const awaitFirstPaintScript = `new Promise(resolve => {
	const observer = new PerformanceObserver(list => {
		for (const entry of list.getEntries()) {
			if (entry.name === 'first-contentful-paint') {
				observer.disconnect();
				resolve(true);
			}
		}
	});
	observer.observe({type: 'paint', buffered: true});
})`

// cachedNativesScript snapshots native globals on every new document before
// page scripts get a chance to overwrite them.
const cachedNativesScript = `(() => {
	window.__pharosNativePromise = Promise;
	window.__pharosNativeError = Error;
	window.__pharosNativeURL = URL;
	window.__pharosNativeFetch = fetch.bind(window);
})()`

// performanceObserverScript installs a buffering long-task observer on every
// new document. Gatherers read the recorded entry later to reason about main
// thread quiet periods.
const performanceObserverScript = `(() => {
	window.__pharosLastLongTask = 0;
	const observer = new PerformanceObserver(list => {
		for (const entry of list.getEntries()) {
			if (entry.entryType === 'longtask') {
				const end = entry.startTime + entry.duration;
				window.__pharosLastLongTask = Math.max(window.__pharosLastLongTask, end);
			}
		}
	});
	observer.observe({entryTypes: ['longtask']});
})()`
