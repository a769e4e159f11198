package main

// launcherPage hosts the map page in a frame with the server log in a
// drawer underneath. main.go drives it through the window.* hooks.
const launcherPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>My iNat Map</title>
<style>
  html, body { margin: 0; height: 100%; font-family: system-ui, sans-serif; background: #f9fafb; color: #1f2937; }
  body { display: flex; flex-direction: column; overflow: hidden; }
  .bar { display: flex; align-items: center; gap: 12px; height: 40px; padding: 0 12px; background: #fff; border-bottom: 1px solid #e5e7eb; flex-shrink: 0; }
  .bar h1 { margin: 0; font-size: 14px; font-weight: 600; color: #16a34a; }
  .status { font-size: 12px; color: #6b7280; }
  .status.ready { color: #16a34a; }
  .status.failed { color: #dc2626; }
  .bar button { margin-left: auto; padding: 4px 10px; border: 1px solid #d1d5db; border-radius: 6px; background: #fff; color: #374151; font-size: 12px; cursor: pointer; }
  .bar button[aria-pressed="true"] { background: #f3f4f6; }
  .map { flex: 1; position: relative; }
  .map iframe { position: absolute; inset: 0; width: 100%; height: 100%; border: 0; }
  .map .waiting { position: absolute; inset: 0; display: flex; align-items: center; justify-content: center; font-size: 13px; color: #9ca3af; }
  .log { height: 35%; border-top: 1px solid #e5e7eb; background: #fff; overflow-y: auto; padding: 8px 12px; font: 12px ui-monospace, Menlo, Consolas, monospace; white-space: pre-wrap; word-break: break-word; }
  .log[hidden] { display: none; }
  .log .warn { color: #b45309; }
  .log .error { color: #dc2626; }
  .log .launcher { color: #2563eb; }
</style>
</head>
<body>
  <div class="bar">
    <h1>My iNat Map</h1>
    <span id="status" class="status">starting</span>
    <button id="log-toggle" aria-pressed="true">Server log</button>
  </div>
  <div class="map">
    <div id="waiting" class="waiting">Waiting for the map server…</div>
    <iframe id="map-frame" title="Map" hidden></iframe>
  </div>
  <div id="log" class="log"></div>
<script>
  const log = document.getElementById('log');
  const status = document.getElementById('status');
  const toggle = document.getElementById('log-toggle');

  function showLog(on) {
    log.hidden = !on;
    toggle.setAttribute('aria-pressed', String(on));
  }
  toggle.addEventListener('click', () => showLog(log.hidden));

  window.appendServerLog = function (text) {
    const line = document.createElement('div');
    line.textContent = text;
    if (text.startsWith('>')) line.className = 'launcher';
    else if (text.includes('level=ERROR')) line.className = 'error';
    else if (text.includes('level=WARN')) line.className = 'warn';
    log.appendChild(line);
    log.scrollTop = log.scrollHeight;
    if (text.startsWith('Server exited') || text.startsWith('> Error:') || text.startsWith('> Config generation failed')) {
      status.textContent = 'server stopped';
      status.className = 'status failed';
      showLog(true);
    }
  };

  window.setServerName = function (name) {
    status.textContent = name + ' starting';
  };

  window.openMap = function (url) {
    const frame = document.getElementById('map-frame');
    frame.src = url;
    frame.hidden = false;
    document.getElementById('waiting').hidden = true;
    status.textContent = 'serving ' + url;
    status.className = 'status ready';
    showLog(false);
  };

  document.addEventListener('keydown', (e) => {
    if (e.key === 'F5' || (e.ctrlKey && e.key === 'r')) e.preventDefault();
  });
</script>
</body>
</html>
`
