package api

import "net/http"

const landingHTML = `<!DOCTYPE html>
<html lang="ru">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Znatok</title>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; background: #0f172a; color: #e2e8f0; display: flex; align-items: center; justify-content: center; min-height: 100vh; margin: 0; }
  .card { max-width: 600px; width: 90%; background: #1e293b; border-radius: 12px; padding: 2.5rem; }
  h1 { margin: 0 0 0.5rem; }
  .subtitle { color: #94a3b8; margin-bottom: 1.5rem; }
  .endpoint { font-family: "SF Mono", Menlo, monospace; color: #a5b4fc; }
</style>
</head>
<body>
<div class="card">
  <h1>Znatok</h1>
  <p class="subtitle">Корпоративный ассистент: ответы на вопросы по документам компании.</p>
  <p><span class="endpoint">POST /api/ask</span> &mdash; задать вопрос</p>
  <p><span class="endpoint">POST /api/upload</span> &mdash; загрузить документы</p>
  <p><span class="endpoint">GET /api/documents</span> &mdash; список документов</p>
  <p><span class="endpoint">/mcp</span> &mdash; MCP Streamable HTTP</p>
  <p><span class="endpoint">GET /api/health</span> &mdash; проверка состояния</p>
</div>
</body>
</html>`

func landingHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(landingHTML))
}
