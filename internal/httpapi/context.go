package httpapi

import "context"

// serverBaseCtx is cancelled on process shutdown so long-lived event streams
// end even when their clients stay connected.
var serverBaseCtx = context.Background()

// SetBaseContext installs the process-level context handlers derive from.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	serverBaseCtx = ctx
}

// joinContexts derives a context that ends as soon as either the server shuts
// down or the request is done. The cancel func must always be called.
func joinContexts(server, request context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(server)
	stop := context.AfterFunc(request, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
