// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package kchannel provides the flow-control adapters layered on raw
// reactor channels: KInput (buffered consumption with re-acquire on
// demand), KOutput (queued production with watermark backpressure), and
// KAccept (connection intake). Higher layers feed these adapters with the
// transfer snapshots the reactor delivers.
package kchannel
