// Package serve exposes a key-value backend over gRPC.
//
// A store server lets several designer processes share one backend: each
// process opens a "grpc" backend pointing at the server, and the server
// forwards every get, scan and put to whatever backend it was started with
// (redis, etcd, neo4j, sqlite or memory). It handles server lifecycle,
// graceful shutdown, health checks, and signal handling.
//
// # Usage
//
//	func main() {
//	    backend, err := kv.Open(ctx, cfg.Backend, logger)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer backend.Close()
//
//	    err = serve.Store(ctx, backend,
//	        serve.WithPort(50051),
//	        serve.WithGracefulShutdown(30*time.Second),
//	    )
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// # Health Checks
//
// The server registers the standard gRPC health service and reports the
// store service as SERVING once it starts. Health flips to NOT_SERVING at
// the beginning of a graceful shutdown.
//
// # Graceful Shutdown
//
// On SIGINT/SIGTERM or context cancellation the server stops accepting new
// connections and waits up to the configured timeout for active requests
// before forcing a stop.
package serve
