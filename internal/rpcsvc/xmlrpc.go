// Copyright 2024 The Batch Queue Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rpcsvc

import (
	"encoding/xml"
	"fmt"
	"strconv"
)

// Value is one <value> element of the XML-RPC wire format: a scalar,
// an array, a struct (string-keyed map), or nil (the transport accepts
// nil per §6, mirroring xmlrpc.client's allow_none=True).
//
// No third-party XML-RPC codec in the retrieved pack could be trusted
// to dispatch spec.md's flat method names (submit_task, not
// Service.submit_task — see SPEC_FULL.md's DOMAIN STACK note), so the
// wire format itself is implemented directly against encoding/xml.
type Value struct {
	V interface{}
}

// MarshalXML encodes V as the appropriate XML-RPC scalar/array/struct
// element nested inside the <value> the caller's struct tag provides.
func (v Value) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if err := marshalInner(e, v.V); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

func marshalInner(e *xml.Encoder, v interface{}) error {
	if v == nil {
		return e.EncodeElement(struct{}{}, xml.StartElement{Name: xml.Name{Local: "nil"}})
	}
	switch t := v.(type) {
	case string:
		return e.EncodeElement(t, xml.StartElement{Name: xml.Name{Local: "string"}})
	case bool:
		n := 0
		if t {
			n = 1
		}
		return e.EncodeElement(n, xml.StartElement{Name: xml.Name{Local: "boolean"}})
	case int:
		return e.EncodeElement(t, xml.StartElement{Name: xml.Name{Local: "int"}})
	case int32:
		return e.EncodeElement(t, xml.StartElement{Name: xml.Name{Local: "int"}})
	case int64:
		return e.EncodeElement(t, xml.StartElement{Name: xml.Name{Local: "int"}})
	case []string:
		arr := make([]interface{}, len(t))
		for i, s := range t {
			arr[i] = s
		}
		return marshalArray(e, arr)
	case []int64:
		arr := make([]interface{}, len(t))
		for i, n := range t {
			arr[i] = n
		}
		return marshalArray(e, arr)
	case []interface{}:
		return marshalArray(e, t)
	case map[string]interface{}:
		return marshalStruct(e, t)
	case map[string]string:
		m := make(map[string]interface{}, len(t))
		for k, s := range t {
			m[k] = s
		}
		return marshalStruct(e, m)
	case map[string]bool:
		m := make(map[string]interface{}, len(t))
		for k, b := range t {
			m[k] = b
		}
		return marshalStruct(e, m)
	default:
		return fmt.Errorf("rpcsvc: cannot marshal XML-RPC value of type %T", v)
	}
}

func marshalArray(e *xml.Encoder, items []interface{}) error {
	arrStart := xml.StartElement{Name: xml.Name{Local: "array"}}
	if err := e.EncodeToken(arrStart); err != nil {
		return err
	}
	dataStart := xml.StartElement{Name: xml.Name{Local: "data"}}
	if err := e.EncodeToken(dataStart); err != nil {
		return err
	}
	for _, item := range items {
		valStart := xml.StartElement{Name: xml.Name{Local: "value"}}
		if err := e.EncodeToken(valStart); err != nil {
			return err
		}
		if err := marshalInner(e, item); err != nil {
			return err
		}
		if err := e.EncodeToken(valStart.End()); err != nil {
			return err
		}
	}
	if err := e.EncodeToken(dataStart.End()); err != nil {
		return err
	}
	return e.EncodeToken(arrStart.End())
}

func marshalStruct(e *xml.Encoder, fields map[string]interface{}) error {
	structStart := xml.StartElement{Name: xml.Name{Local: "struct"}}
	if err := e.EncodeToken(structStart); err != nil {
		return err
	}
	for name, val := range fields {
		memberStart := xml.StartElement{Name: xml.Name{Local: "member"}}
		if err := e.EncodeToken(memberStart); err != nil {
			return err
		}
		if err := e.EncodeElement(name, xml.StartElement{Name: xml.Name{Local: "name"}}); err != nil {
			return err
		}
		valStart := xml.StartElement{Name: xml.Name{Local: "value"}}
		if err := e.EncodeToken(valStart); err != nil {
			return err
		}
		if err := marshalInner(e, val); err != nil {
			return err
		}
		if err := e.EncodeToken(valStart.End()); err != nil {
			return err
		}
		if err := e.EncodeToken(memberStart.End()); err != nil {
			return err
		}
	}
	return e.EncodeToken(structStart.End())
}

// rawValue is the intermediate, fully generic decode target for one
// <value> element; its children are captured verbatim and interpreted
// by UnmarshalXML below.
type rawValue struct {
	String  *string    `xml:"string"`
	Str2    *string    `xml:"str"` // a <str> element, accepted as a string
	Int     *string    `xml:"int"`
	I4      *string    `xml:"i4"`
	Boolean *string     `xml:"boolean"`
	Double  *string    `xml:"double"`
	Nil     *struct{}  `xml:"nil"`
	Array   *rawArray  `xml:"array"`
	Struct  *rawStruct `xml:"struct"`
	Chars   string     `xml:",chardata"`
}

type rawArray struct {
	Values []rawValue `xml:"data>value"`
}

type rawStruct struct {
	Members []rawMember `xml:"member"`
}

type rawMember struct {
	Name  string   `xml:"name"`
	Value rawValue `xml:"value"`
}

// UnmarshalXML decodes one <value> element into V, typing it as
// string, int64, bool, float64, []interface{}, map[string]interface{},
// or nil.
func (v *Value) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var raw rawValue
	if err := d.DecodeElement(&raw, &start); err != nil {
		return err
	}
	goVal, err := raw.toGo()
	if err != nil {
		return err
	}
	v.V = goVal
	return nil
}

func (r rawValue) toGo() (interface{}, error) {
	switch {
	case r.Nil != nil:
		return nil, nil
	case r.Int != nil:
		return strconv.ParseInt(*r.Int, 10, 64)
	case r.I4 != nil:
		return strconv.ParseInt(*r.I4, 10, 64)
	case r.Boolean != nil:
		return *r.Boolean == "1" || *r.Boolean == "true", nil
	case r.Double != nil:
		return strconv.ParseFloat(*r.Double, 64)
	case r.String != nil:
		return *r.String, nil
	case r.Str2 != nil:
		return *r.Str2, nil
	case r.Array != nil:
		out := make([]interface{}, len(r.Array.Values))
		for i, item := range r.Array.Values {
			gv, err := item.toGo()
			if err != nil {
				return nil, err
			}
			out[i] = gv
		}
		return out, nil
	case r.Struct != nil:
		out := make(map[string]interface{}, len(r.Struct.Members))
		for _, m := range r.Struct.Members {
			gv, err := m.Value.toGo()
			if err != nil {
				return nil, err
			}
			out[m.Name] = gv
		}
		return out, nil
	default:
		// No typed child: XML-RPC treats a bare <value>text</value> as a string.
		return r.Chars, nil
	}
}

// MethodCall is the top-level request envelope.
type MethodCall struct {
	XMLName    xml.Name `xml:"methodCall"`
	MethodName string   `xml:"methodName"`
	Params     []Value  `xml:"params>param>value"`
}

// MethodResponse is the top-level response envelope: exactly one of
// Params (a single return value) or Fault is populated.
type MethodResponse struct {
	XMLName xml.Name `xml:"methodResponse"`
	Params  []Value  `xml:"params>param>value,omitempty"`
	Fault   *Value   `xml:"fault>value,omitempty"`
}

// NewResult builds a single-value success response.
func NewResult(v interface{}) MethodResponse {
	return MethodResponse{Params: []Value{{V: v}}}
}

// NewFault builds an XML-RPC Fault response, §6/§7: code 1 for parse
// errors, unknown methods, and internal faults.
func NewFault(code int, message string) MethodResponse {
	return MethodResponse{Fault: &Value{V: map[string]interface{}{
		"faultCode":   int64(code),
		"faultString": message,
	}}}
}
