// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package convert

// SwapMode tells the planner on which side of the pipeline the file lives.
type SwapMode int

const (
	// SwapNone never swaps.
	SwapNone SwapMode = iota
	// SwapBefore swaps the source before conversion (reading from a file).
	SwapBefore
	// SwapAfter swaps the destination after conversion (writing to a file).
	SwapAfter
)

// Endpoint is one side of a transform. Range is the value range the data
// spans on that side; scaling happens only when both sides have one.
type Endpoint struct {
	Type   Type
	Stride int
	Range  *[2]float64
}

// Plan is a precomputed pipeline moving values from one endpoint to
// another: swap, convert to the intermediate type, rescale, convert to the
// destination type, swap.
type Plan struct {
	In, Out Endpoint
	Inter   Type

	Stage1 Func
	Stage3 Func

	Scaled bool
	Gain   float64
	Offset float64

	SwapIn  SwapFunc
	SwapOut SwapFunc
}

// NewPlan derives the shortest pipeline from in to out. bigEndian selects
// whether the swap stage requested by mode is attached.
func NewPlan(in, out Endpoint, mode SwapMode, bigEndian bool) Plan {
	p := Plan{In: in, Out: out}

	p.Scaled = in.Range != nil && out.Range != nil && *in.Range != *out.Range

	// Pivot on the floating side when there is one.
	inInfo := in.Type.Info()
	inter := in.Type
	if inInfo.Integer {
		inter = out.Type
	}
	if p.Scaled && inter.Info().Integer {
		inter = Float64
	}
	if !p.Scaled && (Lookup(in.Type, inter) == nil || Lookup(inter, out.Type) == nil) {
		if inInfo.Signed {
			inter = Int64
		} else {
			inter = Uint64
		}
	}
	p.Inter = inter

	if p.Scaled {
		imin, imax := in.Range[0], in.Range[1]
		omin, omax := out.Range[0], out.Range[1]
		p.Gain = (omax - omin) / (imax - imin)
		p.Offset = omin - p.Gain*imin
	}

	size := inter.Size()
	if in.Type != inter || in.Stride != size {
		p.Stage1 = Lookup(in.Type, inter)
	}
	if out.Type != inter || out.Stride != size {
		p.Stage3 = Lookup(inter, out.Type)
	}
	if p.Stage1 == nil && p.Stage3 == nil {
		// The data has to land in the destination at least once.
		p.Stage1 = Lookup(inter, inter)
	}

	if bigEndian {
		switch mode {
		case SwapBefore:
			p.SwapIn = Swapper(in.Type)
		case SwapAfter:
			p.SwapOut = Swapper(out.Type)
		}
	}

	return p
}

// Apply runs the pipeline over n values. src may be modified in place by
// the swap and scale stages. tmp must hold n values of the intermediate
// type.
func (p *Plan) Apply(dst, src, tmp []byte, n int) {
	if n == 0 {
		return
	}
	if p.SwapIn != nil {
		p.SwapIn(src, p.In.Stride, n)
	}

	buf, stride := src, p.In.Stride
	if p.Stage1 != nil {
		if p.Stage3 == nil {
			p.Stage1(dst, p.Out.Stride, src, p.In.Stride, n)
			buf, stride = dst, p.Out.Stride
		} else {
			p.Stage1(tmp, p.Inter.Size(), src, p.In.Stride, n)
			buf, stride = tmp, p.Inter.Size()
		}
	}

	if p.Scaled {
		scale(p.Inter, buf, n, p.Gain, p.Offset)
	}

	if p.Stage3 != nil {
		p.Stage3(dst, p.Out.Stride, buf, stride, n)
	}

	if p.SwapOut != nil {
		p.SwapOut(dst, p.Out.Stride, n)
	}
}
