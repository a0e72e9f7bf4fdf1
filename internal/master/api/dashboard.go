package api

// dashboardHTML is the static operator page served at /. It drives the
// JSON endpoints with plain fetch calls.
const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Fleetling Orchestrator</title>
    <style>
        body { font-family: sans-serif; margin: 2rem; }
        button { margin: 0.25rem; padding: 0.5rem 1rem; }
        pre { background: #f4f4f4; padding: 1rem; overflow-x: auto; }
    </style>
</head>
<body>
    <h1>Fleetling Orchestrator</h1>
    <div>
        <button id="refreshWorkers">Refresh Worker Statuses</button>
        <button id="updateWorkers">Force Update Worker Statuses</button>
        <button id="viewSettings">View Settings</button>
        <button id="viewHealthyHosts">View Healthy Hosts</button>
    </div>
    <pre id="workersOutput"></pre>
    <pre id="settingsOutput"></pre>
    <pre id="healthyHostsOutput"></pre>

    <script>
        async function fetchAndShow(url, id) {
            const response = await fetch(url);
            const data = await response.json();
            document.getElementById(id).innerText = JSON.stringify(data, null, 2);
        }

        document.getElementById("refreshWorkers").addEventListener("click", () => {
            fetchAndShow('/workers', 'workersOutput');
        });

        document.getElementById("updateWorkers").addEventListener("click", async () => {
            await fetch('/workers', { method: 'PUT' });
            fetchAndShow('/workers', 'workersOutput');
        });

        document.getElementById("viewSettings").addEventListener("click", () => {
            fetchAndShow('/settings', 'settingsOutput');
        });

        document.getElementById("viewHealthyHosts").addEventListener("click", () => {
            fetchAndShow('/healthy_hosts', 'healthyHostsOutput');
        });
    </script>
</body>
</html>
`
