// Package hashjob implements clustercore's distributed hash-cracking
// job: a coordinator-owned Job split into versioned Batches of Chunks,
// claimed by workers through gossip metadata and solved cooperatively.
//
// The coordinator seeds a job's first batch, periodically refills
// chunks as workers run low, and re-mints a dead worker's unfinished
// chunks as recovery work on a survivor. Workers discover claimed
// chunks from the coordinator's hash_batches_<id> gossip key, publish
// their own progress under hash_worker_status, and report solutions to
// hash_coordinator/report_solution the moment they find one — gossip
// alone would be too slow for that round-trip.
package hashjob
