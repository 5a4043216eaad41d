package dashboard

const pageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{if .Query}}{{.Query}} - {{end}}SiteSearch</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body { font-family: 'Inter', -apple-system, system-ui, sans-serif; background: #0f172a; color: #e2e8f0; min-height: 100vh; }
        .header { background: linear-gradient(135deg, #1e293b, #334155); padding: 1.5rem 2rem; border-bottom: 1px solid #475569; display: flex; justify-content: space-between; align-items: center; }
        .header h1 { font-size: 1.5rem; background: linear-gradient(135deg, #38bdf8, #818cf8); background-clip: text; -webkit-background-clip: text; -webkit-text-fill-color: transparent; }
        .header .docs { padding: 0.5rem 1rem; border-radius: 9999px; font-size: 0.875rem; font-weight: 600; background: #166534; color: #4ade80; }
        form { display: flex; gap: 0.5rem; padding: 2rem 2rem 1rem; }
        input[type=text] { flex: 1; padding: 0.75rem 1rem; border-radius: 8px; border: 1px solid #475569; background: #1e293b; color: #f1f5f9; font-size: 1rem; }
        select, button { padding: 0.75rem 1rem; border-radius: 8px; border: 1px solid #475569; background: #334155; color: #e2e8f0; }
        .meta { padding: 0 2rem; color: #94a3b8; font-size: 0.875rem; }
        .message { margin: 1rem 2rem; padding: 1rem; border-radius: 8px; border: 1px solid #fbbf24; color: #fbbf24; }
        .results { padding: 1rem 2rem; display: grid; gap: 1rem; }
        .card { background: #1e293b; border: 1px solid #334155; border-radius: 12px; padding: 1.25rem 1.5rem; }
        .card a { color: #38bdf8; font-size: 1.125rem; font-weight: 600; text-decoration: none; }
        .card .url { font-size: 0.75rem; color: #64748b; margin: 0.25rem 0 0.5rem; }
        .card .snippet { color: #cbd5e1; line-height: 1.5; }
        .highlight { color: #fde047; }
        .footer { text-align: center; padding: 1rem; color: #475569; font-size: 0.75rem; }
    </style>
</head>
<body>
    <div class="header">
        <h1>SiteSearch</h1>
        {{if .Documents}}<span class="docs">{{.Documents}} documents</span>{{end}}
    </div>
    <form method="get" action="/">
        <input type="text" name="q" value="{{.Query}}" placeholder="Search..." autofocus>
        <select name="mode">
            <option value="ranked"{{if eq .Mode "ranked"}} selected{{end}}>Ranked</option>
            <option value="boolean"{{if eq .Mode "boolean"}} selected{{end}}>All terms</option>
        </select>
        <button type="submit">Search</button>
    </form>
    {{if .Message}}<div class="message">{{.Message}}</div>{{end}}
    {{if .Searched}}<div class="meta">{{.Total}} results in {{.Elapsed}}</div>{{end}}
    <div class="results">
    {{range .Results}}
        <div class="card">
            <a href="{{.URL}}">{{if .Title}}{{.Title}}{{else}}{{.URL}}{{end}}</a>
            <div class="url">{{.URL}}</div>
            <div class="snippet">{{.Snippet}}</div>
        </div>
    {{end}}
    </div>
    <div class="footer">SiteSearch</div>
</body>
</html>`
