package engine

import "log/slog"

// Stats holds cumulative counters for one ingestion run.
type Stats struct {
	Records     int64 `json:"records"`
	Starts      int64 `json:"starts"`
	Finishes    int64 `json:"finishes"`
	SetMetadata int64 `json:"set_metadata"`
	DataRecords int64 `json:"data_records"`

	// Unrecognized control records.
	Controls int64 `json:"controls"`
	// Malformed lifecycle records.
	InvalidRecords int64 `json:"invalid_records"`
	// Lifecycle or data records naming an ID that is not live.
	UnknownEntry int64 `json:"unknown_entry"`
	// Start records for IDs that were already live.
	Duplicates int64 `json:"duplicates"`

	// Reserved time entry samples.
	TimeSyncs int64 `json:"time_syncs"`
	// Data records seen before the time base was known.
	Skipped int64 `json:"skipped"`
	// Data records of unsupported or unknown types.
	Unsupported  int64 `json:"unsupported"`
	DecodeErrors int64 `json:"decode_errors"`

	Values  int64 `json:"values"`
	Points  int64 `json:"points"`
	Flushes int64 `json:"flushes"`
}

// LogValue renders the counters as a slog group.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("records", s.Records),
		slog.Int64("starts", s.Starts),
		slog.Int64("finishes", s.Finishes),
		slog.Int64("set_metadata", s.SetMetadata),
		slog.Int64("controls", s.Controls),
		slog.Int64("invalid_records", s.InvalidRecords),
		slog.Int64("data_records", s.DataRecords),
		slog.Int64("unknown_entry", s.UnknownEntry),
		slog.Int64("duplicates", s.Duplicates),
		slog.Int64("time_syncs", s.TimeSyncs),
		slog.Int64("skipped", s.Skipped),
		slog.Int64("unsupported", s.Unsupported),
		slog.Int64("decode_errors", s.DecodeErrors),
		slog.Int64("values", s.Values),
		slog.Int64("points", s.Points),
		slog.Int64("flushes", s.Flushes),
	)
}
