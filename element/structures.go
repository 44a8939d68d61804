package element

// MAL structure type numbers used by the publish-subscribe pattern.
const (
	SubscriptionType       int32 = 23
	UpdateHeaderType       int32 = 26
	NamedValueType         int32 = 29
	SubscriptionFilterType int32 = 31
)

var (
	UpdateHeaderShortForm           = NewShortForm(MALArea, MALService, MALAreaVersion, UpdateHeaderType)
	UpdateHeaderListShortForm       = UpdateHeaderShortForm.List()
	SubscriptionShortForm           = NewShortForm(MALArea, MALService, MALAreaVersion, SubscriptionType)
	SubscriptionFilterShortForm     = NewShortForm(MALArea, MALService, MALAreaVersion, SubscriptionFilterType)
	SubscriptionFilterListShortForm = SubscriptionFilterShortForm.List()
	NamedValueShortForm             = NewShortForm(MALArea, MALService, MALAreaVersion, NamedValueType)
	NamedValueListShortForm         = NamedValueShortForm.List()
)

// UpdateHeader describes one published update.
type UpdateHeader struct {
	Source    Identifier
	Domain    IdentifierList // nil when the message domain applies
	KeyValues AttributeList
}

func (h *UpdateHeader) ShortForm() ShortForm { return UpdateHeaderShortForm }

func (h *UpdateHeader) Encode(enc Encoder) error {
	if err := enc.EncodeIdentifier(string(h.Source)); err != nil {
		return err
	}
	if err := encodeNullableList(enc, h.Domain == nil, &h.Domain); err != nil {
		return err
	}
	return encodeNullableList(enc, h.KeyValues == nil, &h.KeyValues)
}

func (h *UpdateHeader) Decode(dec Decoder) error {
	src, err := dec.DecodeIdentifier()
	if err != nil {
		return err
	}
	h.Source = Identifier(src)
	e, err := dec.DecodeNullableElement(&IdentifierList{})
	if err != nil {
		return err
	}
	h.Domain = nil
	if e != nil {
		h.Domain = *e.(*IdentifierList)
	}
	e, err = dec.DecodeNullableElement(&AttributeList{})
	if err != nil {
		return err
	}
	h.KeyValues = nil
	if e != nil {
		h.KeyValues = *e.(*AttributeList)
	}
	return nil
}

// UpdateHeaderList is the ordered header column of a publish.
type UpdateHeaderList []*UpdateHeader

func (l *UpdateHeaderList) ShortForm() ShortForm { return UpdateHeaderListShortForm }

func (l *UpdateHeaderList) Len() int { return len(*l) }

func (l *UpdateHeaderList) Subset(indexes []int) Sequence {
	out := make(UpdateHeaderList, 0, len(indexes))
	for _, i := range indexes {
		out = append(out, (*l)[i])
	}
	return &out
}

func (l *UpdateHeaderList) Encode(enc Encoder) error {
	le, err := enc.ListEncoder(len(*l))
	if err != nil {
		return err
	}
	for _, h := range *l {
		if h == nil {
			err = le.EncodeNullableElement(nil)
		} else {
			err = le.EncodeNullableElement(h)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (l *UpdateHeaderList) Decode(dec Decoder) error {
	ld, err := dec.ListDecoder()
	if err != nil {
		return err
	}
	out := make(UpdateHeaderList, 0, ld.Size())
	for ld.HasNext() {
		e, err := ld.DecodeNullableElement(&UpdateHeader{})
		if err != nil {
			return err
		}
		if e == nil {
			out = append(out, nil)
			continue
		}
		out = append(out, e.(*UpdateHeader))
	}
	*l = out
	return nil
}

// SubscriptionFilter accepts updates whose key Name holds one of Values.
// An empty Values or a "*" entry accepts any value.
type SubscriptionFilter struct {
	Name   Identifier
	Values AttributeList
}

func (f *SubscriptionFilter) ShortForm() ShortForm { return SubscriptionFilterShortForm }

func (f *SubscriptionFilter) Encode(enc Encoder) error {
	if err := enc.EncodeIdentifier(string(f.Name)); err != nil {
		return err
	}
	return enc.EncodeElement(&f.Values)
}

func (f *SubscriptionFilter) Decode(dec Decoder) error {
	name, err := dec.DecodeIdentifier()
	if err != nil {
		return err
	}
	f.Name = Identifier(name)
	f.Values = nil
	_, err = dec.DecodeElement(&f.Values)
	return err
}

// AcceptsAny reports whether the filter places no constraint on its key.
func (f *SubscriptionFilter) AcceptsAny() bool {
	if len(f.Values) == 0 {
		return true
	}
	for _, v := range f.Values {
		if IsWildcard(v) {
			return true
		}
	}
	return false
}

// SubscriptionFilterList is the ordered filter set of a subscription.
type SubscriptionFilterList []*SubscriptionFilter

func (l *SubscriptionFilterList) ShortForm() ShortForm { return SubscriptionFilterListShortForm }

func (l *SubscriptionFilterList) Encode(enc Encoder) error {
	le, err := enc.ListEncoder(len(*l))
	if err != nil {
		return err
	}
	for _, f := range *l {
		if f == nil {
			err = le.EncodeNullableElement(nil)
		} else {
			err = le.EncodeNullableElement(f)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (l *SubscriptionFilterList) Decode(dec Decoder) error {
	ld, err := dec.ListDecoder()
	if err != nil {
		return err
	}
	out := make(SubscriptionFilterList, 0, ld.Size())
	for ld.HasNext() {
		e, err := ld.DecodeNullableElement(&SubscriptionFilter{})
		if err != nil {
			return err
		}
		if e == nil {
			out = append(out, nil)
			continue
		}
		out = append(out, e.(*SubscriptionFilter))
	}
	*l = out
	return nil
}

// Subscription is a consumer's registration with a broker.
type Subscription struct {
	SubscriptionID Identifier
	Domain         IdentifierList
	Filters        SubscriptionFilterList
}

func (s *Subscription) ShortForm() ShortForm { return SubscriptionShortForm }

func (s *Subscription) Encode(enc Encoder) error {
	if err := enc.EncodeIdentifier(string(s.SubscriptionID)); err != nil {
		return err
	}
	if err := encodeNullableList(enc, s.Domain == nil, &s.Domain); err != nil {
		return err
	}
	return encodeNullableList(enc, s.Filters == nil, &s.Filters)
}

func (s *Subscription) Decode(dec Decoder) error {
	id, err := dec.DecodeIdentifier()
	if err != nil {
		return err
	}
	s.SubscriptionID = Identifier(id)
	e, err := dec.DecodeNullableElement(&IdentifierList{})
	if err != nil {
		return err
	}
	s.Domain = nil
	if e != nil {
		s.Domain = *e.(*IdentifierList)
	}
	e, err = dec.DecodeNullableElement(&SubscriptionFilterList{})
	if err != nil {
		return err
	}
	s.Filters = nil
	if e != nil {
		s.Filters = *e.(*SubscriptionFilterList)
	}
	return nil
}

// NamedValue pairs a key name with its value in a notify.
type NamedValue struct {
	Name  Identifier
	Value Attribute
}

func (n *NamedValue) ShortForm() ShortForm { return NamedValueShortForm }

func (n *NamedValue) Encode(enc Encoder) error {
	if err := enc.EncodeIdentifier(string(n.Name)); err != nil {
		return err
	}
	return enc.EncodeAttribute(n.Value)
}

func (n *NamedValue) Decode(dec Decoder) error {
	name, err := dec.DecodeIdentifier()
	if err != nil {
		return err
	}
	n.Name = Identifier(name)
	n.Value, err = dec.DecodeAttribute()
	return err
}

// NamedValueList is an ordered list of named values.
type NamedValueList []*NamedValue

func (l *NamedValueList) ShortForm() ShortForm { return NamedValueListShortForm }

func (l *NamedValueList) Encode(enc Encoder) error {
	le, err := enc.ListEncoder(len(*l))
	if err != nil {
		return err
	}
	for _, nv := range *l {
		if nv == nil {
			err = le.EncodeNullableElement(nil)
		} else {
			err = le.EncodeNullableElement(nv)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (l *NamedValueList) Decode(dec Decoder) error {
	ld, err := dec.ListDecoder()
	if err != nil {
		return err
	}
	out := make(NamedValueList, 0, ld.Size())
	for ld.HasNext() {
		e, err := ld.DecodeNullableElement(&NamedValue{})
		if err != nil {
			return err
		}
		if e == nil {
			out = append(out, nil)
			continue
		}
		out = append(out, e.(*NamedValue))
	}
	*l = out
	return nil
}

// Get returns the value named name.
func (l NamedValueList) Get(name string) (Attribute, bool) {
	for _, nv := range l {
		if nv != nil && string(nv.Name) == name {
			return nv.Value, true
		}
	}
	return nil, false
}

func encodeNullableList(enc Encoder, null bool, e Element) error {
	if null {
		return enc.EncodeNullableElement(nil)
	}
	return enc.EncodeNullableElement(e)
}
