// Package elevation holds the error taxonomy shared by the raster, dataset
// and httpapi packages.
package elevation

import "fmt"

// Kind classifies an error so callers can decide whether it is fatal to the
// whole process, fatal to a request, or scoped to a single point.
type Kind int

const (
	// KindConfig marks a configuration problem. Fatal at startup.
	KindConfig Kind = iota
	// KindDatasetNotFound marks a request against an unknown dataset name.
	KindDatasetNotFound
	// KindInvalidPoint marks a point with out-of-range latitude/longitude.
	KindInvalidPoint
	// KindUncovered marks a point outside every raster a dataset owns.
	KindUncovered
	// KindNoData marks a point whose sampled kernel footprint touched a
	// NODATA pixel.
	KindNoData
	// KindRasterIO marks an I/O or decode failure while reading a raster.
	// Fatal to the request that triggered it.
	KindRasterIO
	// KindUnsupportedFormat marks a raster file this reader cannot decode.
	// Fatal at load time.
	KindUnsupportedFormat
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config_error"
	case KindDatasetNotFound:
		return "dataset_not_found"
	case KindInvalidPoint:
		return "invalid_point"
	case KindUncovered:
		return "uncovered"
	case KindNoData:
		return "no_data"
	case KindRasterIO:
		return "raster_io_error"
	case KindUnsupportedFormat:
		return "unsupported_format"
	default:
		return "unknown"
	}
}

// Error is a typed error carrying a Kind so HTTP handlers and the query
// engine can branch on category without string matching.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether err (or anything it wraps) is an *Error of kind k.
func Is(err error, k Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == k {
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

func newf(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

func wrapf(k Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...), Err: err}
}

// ConfigErrorf builds a startup-fatal configuration error.
func ConfigErrorf(format string, args ...interface{}) *Error {
	return newf(KindConfig, format, args...)
}

// DatasetNotFoundf builds a per-request dataset-not-found error.
func DatasetNotFoundf(format string, args ...interface{}) *Error {
	return newf(KindDatasetNotFound, format, args...)
}

// InvalidPointf builds a per-point invalid-coordinate error.
func InvalidPointf(format string, args ...interface{}) *Error {
	return newf(KindInvalidPoint, format, args...)
}

// Uncoveredf builds a per-point out-of-coverage error.
func Uncoveredf(format string, args ...interface{}) *Error {
	return newf(KindUncovered, format, args...)
}

// NoDataf builds a per-point NODATA error.
func NoDataf(format string, args ...interface{}) *Error {
	return newf(KindNoData, format, args...)
}

// RasterIOf wraps an I/O or decode failure as a request-fatal error.
func RasterIOf(err error, format string, args ...interface{}) *Error {
	return wrapf(KindRasterIO, err, format, args...)
}

// UnsupportedFormatf builds a startup-fatal unsupported-format error.
func UnsupportedFormatf(format string, args ...interface{}) *Error {
	return newf(KindUnsupportedFormat, format, args...)
}
