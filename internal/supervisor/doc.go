// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

/*
Package supervisor runs the long-lived EdgeGuard services under a suture v4
tree.

	RootSupervisor ("edgeguard")
	├── WorkerSupervisor ("worker-layer")
	│   └── scan-job-runner
	├── MessagingSupervisor ("messaging-layer")
	│   ├── websocket-hub
	│   └── audit-stream-subscriber
	└── APISupervisor ("api-layer")
	    └── http-server

Each layer restarts its children independently: a websocket hub crash does
not interrupt the HTTP listener, and a wedged scan worker does not take the
live audit stream down with it.

Supervisor events are logged through sutureslog, backed by the zerolog
adapter from internal/logging:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddWorkerService(jobs)
	tree.AddMessagingService(hub)
	tree.AddAPIService(services.NewHTTPServerService(srv, cfg.Server.ShutdownTimeout))
	err = tree.Serve(ctx)

Serve returns when ctx is canceled. Services that did not stop within
ShutdownTimeout are listed by UnstoppedServiceReport.
*/
package supervisor
