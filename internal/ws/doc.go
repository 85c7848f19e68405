// Package ws streams probe batch events to WebSocket clients.
//
// Every connected client receives every batch event. Clients may also start
// batches over the same connection.
//
// Message Types (Client → Server):
//   - start_batch: Start a batch, optional batchId and pluginIds
//   - ping: Keep-alive ping
//
// Message Types (Server → Client):
//   - system: Connection acknowledgment
//   - probe:batch-started: Selection of a batch started by this client
//   - probe:result: One plugin's output
//   - probe:batch-complete: Every plugin of the batch has reported
//   - pong: Reply to ping
//   - error: Error occurred
//
// Example Usage:
//
//	hub := ws.NewHub(logger, metrics)
//	go hub.Run(ctx)
//	handler := ws.NewHandler(hub, coordinator, ctx, logger)
//	router.GET("/ws", handler.HandleConnection)
package ws
