/*
Package log provides structured logging for clustercore using zerolog.

A single global zerolog.Logger is initialized once via Init and used
throughout the node process. WithComponent, WithNode, WithService,
WithPeer and WithJob derive child loggers that carry a context field
onto every subsequent log line without threading it through every call.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

	rpcLog := log.WithComponent("rpc")
	rpcLog.Info().Str("method", "hash_coordinator/create_job").Msg("handled request")

	jobLog := log.WithJob(job.JobID)
	jobLog.Warn().Err(err).Msg("chunk failed, requeueing")

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
*/
package log
