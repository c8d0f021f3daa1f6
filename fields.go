// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package xdf

import (
	"fmt"
	"time"
)

// Field names a configurable property of a file or of a channel.
type Field int

// Channel fields. The order matters when a configuration is replayed onto
// a channel of another format: the stored type resets the digital range,
// and the physical range is checked against the memory type.
const (
	FieldLabel Field = iota + 1
	FieldUnit
	FieldTransducer
	FieldPrefiltering
	FieldReserved
	FieldStoredType
	FieldDigitalMin
	FieldDigitalMax
	FieldMemoryType
	FieldPhysicalMin
	FieldPhysicalMax
	FieldArrayIndex
	FieldArrayOffset
	FieldArrayDigital
	FieldLowpass
	FieldHighpass
	FieldNotch
	FieldImpedance
)

// File fields.
const (
	FieldRecordDuration Field = iota + 100
	FieldSamplesPerRecord
	FieldSamplingFrequency
	FieldRecordingTime
	FieldSubject
	FieldSession
	FieldNumChannels
	FieldNumRecords
	FieldNumEvents
	FieldFormat
	FieldHeaderSize
	FieldEquipmentID
	FieldLaboratoryID
	FieldTechnicianID
	FieldGender
	FieldHandedness
	FieldHeight
	FieldWeight
	FieldBirthday
)

type kind int

const (
	kindString kind = iota
	kindFloat
	kindInt
	kindType
	kindBool
	kindTime
	kindFormat
)

type fieldInfo struct {
	name     string
	kind     kind
	channel  bool
	readOnly bool
	// memory fields describe the in-memory side of a channel and stay
	// writable in read mode.
	memory bool
}

var fieldInfos = map[Field]fieldInfo{
	FieldLabel:        {name: "label", kind: kindString, channel: true},
	FieldUnit:         {name: "unit", kind: kindString, channel: true},
	FieldTransducer:   {name: "transducer", kind: kindString, channel: true},
	FieldPrefiltering: {name: "prefiltering", kind: kindString, channel: true},
	FieldReserved:     {name: "reserved", kind: kindString, channel: true},
	FieldStoredType:   {name: "stored type", kind: kindType, channel: true},
	FieldDigitalMin:   {name: "digital min", kind: kindFloat, channel: true},
	FieldDigitalMax:   {name: "digital max", kind: kindFloat, channel: true},
	FieldMemoryType:   {name: "memory type", kind: kindType, channel: true, memory: true},
	FieldPhysicalMin:  {name: "physical min", kind: kindFloat, channel: true},
	FieldPhysicalMax:  {name: "physical max", kind: kindFloat, channel: true},
	FieldArrayIndex:   {name: "array index", kind: kindInt, channel: true, memory: true},
	FieldArrayOffset:  {name: "array offset", kind: kindInt, channel: true, memory: true},
	FieldArrayDigital: {name: "array digital", kind: kindBool, channel: true, memory: true},
	FieldLowpass:      {name: "lowpass", kind: kindFloat, channel: true},
	FieldHighpass:     {name: "highpass", kind: kindFloat, channel: true},
	FieldNotch:        {name: "notch", kind: kindFloat, channel: true},
	FieldImpedance:    {name: "impedance", kind: kindFloat, channel: true},

	FieldRecordDuration:    {name: "record duration", kind: kindFloat},
	FieldSamplesPerRecord:  {name: "samples per record", kind: kindInt},
	FieldSamplingFrequency: {name: "sampling frequency", kind: kindInt},
	FieldRecordingTime:     {name: "recording time", kind: kindTime},
	FieldSubject:           {name: "subject", kind: kindString},
	FieldSession:           {name: "session", kind: kindString},
	FieldNumChannels:       {name: "channel count", kind: kindInt, readOnly: true},
	FieldNumRecords:        {name: "record count", kind: kindInt, readOnly: true},
	FieldNumEvents:         {name: "event count", kind: kindInt, readOnly: true},
	FieldFormat:            {name: "format", kind: kindFormat, readOnly: true},
	FieldHeaderSize:        {name: "header size", kind: kindInt, readOnly: true},
	FieldEquipmentID:       {name: "equipment id", kind: kindInt},
	FieldLaboratoryID:      {name: "laboratory id", kind: kindInt},
	FieldTechnicianID:      {name: "technician id", kind: kindInt},
	FieldGender:            {name: "gender", kind: kindInt},
	FieldHandedness:        {name: "handedness", kind: kindInt},
	FieldHeight:            {name: "height", kind: kindFloat},
	FieldWeight:            {name: "weight", kind: kindFloat},
	FieldBirthday:          {name: "birthday", kind: kindTime},
}

// channelFields and fileFields list the fields in replay order.
var (
	channelFields = []Field{
		FieldLabel, FieldUnit, FieldTransducer, FieldPrefiltering, FieldReserved,
		FieldStoredType, FieldDigitalMin, FieldDigitalMax,
		FieldMemoryType, FieldPhysicalMin, FieldPhysicalMax,
		FieldArrayIndex, FieldArrayOffset, FieldArrayDigital,
		FieldLowpass, FieldHighpass, FieldNotch, FieldImpedance,
	}
	fileFields = []Field{
		FieldRecordDuration, FieldSamplesPerRecord, FieldRecordingTime,
		FieldSubject, FieldSession,
		FieldEquipmentID, FieldLaboratoryID, FieldTechnicianID,
		FieldGender, FieldHandedness, FieldHeight, FieldWeight, FieldBirthday,
	}
)

func (f Field) String() string {
	if info, ok := fieldInfos[f]; ok {
		return info.name
	}
	return fmt.Sprintf("field(%d)", int(f))
}

// Setting pairs a field with the value to give it.
type Setting struct {
	Field Field
	Value any
}

// normalize converts value to the canonical Go type of kind k: string,
// float64, int, Type, bool, time.Time or Format.
func normalize(k kind, value any) (any, error) {
	switch k {
	case kindString:
		if v, ok := value.(string); ok {
			return v, nil
		}
	case kindFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int32:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
	case kindInt:
		switch v := value.(type) {
		case int:
			return v, nil
		case int8:
			return int(v), nil
		case int16:
			return int(v), nil
		case int32:
			return int(v), nil
		case int64:
			return int(v), nil
		case uint8:
			return int(v), nil
		case uint16:
			return int(v), nil
		case uint32:
			return int(v), nil
		}
	case kindType:
		if v, ok := value.(Type); ok && v.Valid() {
			return v, nil
		}
	case kindBool:
		if v, ok := value.(bool); ok {
			return v, nil
		}
	case kindTime:
		if v, ok := value.(time.Time); ok {
			return v, nil
		}
	case kindFormat:
		if v, ok := value.(Format); ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %T", ErrInvalidValue, value)
}

// getAs unwraps the result of a generic getter into T.
func getAs[T any](v any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: field holds %T", ErrInvalidValue, v)
	}
	return t, nil
}
