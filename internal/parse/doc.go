// Package parse turns fetched documents into records.
//
// Parsers do no business interpretation: they map document fields onto
// model types and normalize dates, and leave classification (loadability,
// location resolution, diffing) to the engine packages.
package parse
