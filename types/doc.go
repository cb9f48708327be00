// Copyright (c) ReelScope Authors.
// Licensed under the MIT License.

/*
Package types defines the shared video-analysis data model: jobs, shots,
scenes, detector results, coverage accumulators, risks, and the final
Video Analysis Bundle (VAB). It has no internal dependencies so every
other package in this module may import it without risk of cycles.
*/
package types
