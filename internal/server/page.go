package server

import (
	"context"
	"io"
	"net/url"

	"github.com/a-h/templ"
)

const pageStyle = `body{font-family:system-ui,sans-serif;margin:0;padding:24px;background:#f5f5f5}` +
	`main{max-width:960px;margin:0 auto;background:#fff;padding:24px;border-radius:8px}` +
	`h1{border-bottom:2px solid #2a6;padding-bottom:8px}` +
	`.fibre-status{font-size:12px;color:#888}`

// reloadScript listens for registry changes. A preview page subscribes to
// its own component and re-fetches the fragment; the index hears about
// every component and reloads.
const reloadScript = `(function(){
var preview=document.getElementById("fibre-preview");
function connect(){
var query=preview?"?component="+encodeURIComponent(preview.dataset.component):"";
var ws=new WebSocket((location.protocol==="https:"?"wss://":"ws://")+location.host+"/ws"+query);
ws.onmessage=function(e){
var msg=JSON.parse(e.data);
if(!preview){location.reload();return}
if(msg.type==="removed"){preview.innerHTML="<p class=\"fibre-status\">component removed</p>";return}
fetch("/render/"+msg.target+location.search).then(function(r){return r.text()}).then(function(html){preview.innerHTML=html});
};
ws.onclose=function(){setTimeout(connect,1000)};
}
connect();
})();`

// page wraps body in the preview document.
func page(title, heading string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html><head><meta charset="utf-8"><title>`+
			templ.EscapeString(title)+`</title><style>`+pageStyle+`</style></head><body>`); err != nil {
			return err
		}
		if heading != "" {
			if _, err := io.WriteString(w, `<p class="fibre-status"><a href="/">components</a> / `+
				templ.EscapeString(heading)+`</p>`); err != nil {
				return err
			}
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `<script>`+reloadScript+`</script></body></html>`)
		return err
	})
}

// previewBody holds the rendered component markup.
func previewBody(name, fragment string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<main id="fibre-preview" data-component="`+templ.EscapeString(name)+`">`); err != nil {
			return err
		}
		if err := templ.Raw(fragment).Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</main>`)
		return err
	})
}

// indexBody links to every registered component.
func indexBody(names []string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<main><h1>Components</h1>`); err != nil {
			return err
		}
		if len(names) == 0 {
			_, err := io.WriteString(w, `<p class="fibre-status">no components found</p></main>`)
			return err
		}
		if _, err := io.WriteString(w, `<ul>`); err != nil {
			return err
		}
		for _, name := range names {
			if _, err := io.WriteString(w, `<li><a href="/component/`+url.PathEscape(name)+`">`+
				templ.EscapeString(name)+`</a></li>`); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</ul></main>`)
		return err
	})
}
