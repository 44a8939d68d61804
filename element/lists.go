package element

// Short forms of the typed lists.
var (
	IdentifierListShortForm = AttributeShortForm(IdentifierType).List()
	AttributeListShortForm  = NewShortForm(MALArea, MALService, MALAreaVersion, -attributeStructType)
)

// attributeStructType is the abstract Attribute type number; only its list is concrete.
const attributeStructType = 0x7FFFF

// List is a homogeneous list of nullable elements sharing one item short form.
// It carries update columns and any list without a dedicated Go type.
type List struct {
	item  ShortForm
	Items []Element
}

// NewList returns a list of item-typed elements.
func NewList(item ShortForm, items ...Element) *List {
	return &List{item: item, Items: items}
}

// ItemShortForm returns the short form shared by the items.
func (l *List) ItemShortForm() ShortForm { return l.item }

func (l *List) ShortForm() ShortForm { return l.item.List() }

func (l *List) Len() int { return len(l.Items) }

func (l *List) Subset(indexes []int) Sequence {
	out := &List{item: l.item, Items: make([]Element, 0, len(indexes))}
	for _, i := range indexes {
		out.Items = append(out.Items, l.Items[i])
	}
	return out
}

func (l *List) Encode(enc Encoder) error {
	le, err := enc.ListEncoder(len(l.Items))
	if err != nil {
		return err
	}
	for _, it := range l.Items {
		if err := le.EncodeNullableElement(it); err != nil {
			return err
		}
	}
	return nil
}

func (l *List) Decode(dec Decoder) error {
	ld, err := dec.ListDecoder()
	if err != nil {
		return err
	}
	l.Items = make([]Element, 0, ld.Size())
	for ld.HasNext() {
		empty, err := ld.Create(l.item)
		if err != nil {
			return err
		}
		it, err := ld.DecodeNullableElement(empty)
		if err != nil {
			return err
		}
		l.Items = append(l.Items, it)
	}
	return nil
}

// IdentifierList is an ordered list of nullable identifiers; domains use it.
type IdentifierList []*Identifier

// NewIdentifierList builds a list without null entries.
func NewIdentifierList(ids ...string) IdentifierList {
	out := make(IdentifierList, len(ids))
	for i, id := range ids {
		out[i] = NewIdentifier(id)
	}
	return out
}

// Strings returns the entries, with null entries as empty strings.
func (l IdentifierList) Strings() []string {
	out := make([]string, len(l))
	for i, id := range l {
		if id != nil {
			out[i] = string(*id)
		}
	}
	return out
}

func (l *IdentifierList) ShortForm() ShortForm { return IdentifierListShortForm }

func (l *IdentifierList) Len() int { return len(*l) }

func (l *IdentifierList) Subset(indexes []int) Sequence {
	out := make(IdentifierList, 0, len(indexes))
	for _, i := range indexes {
		out = append(out, (*l)[i])
	}
	return &out
}

func (l *IdentifierList) Encode(enc Encoder) error {
	le, err := enc.ListEncoder(len(*l))
	if err != nil {
		return err
	}
	for _, id := range *l {
		var p *string
		if id != nil {
			s := string(*id)
			p = &s
		}
		if err := le.EncodeNullableIdentifier(p); err != nil {
			return err
		}
	}
	return nil
}

func (l *IdentifierList) Decode(dec Decoder) error {
	ld, err := dec.ListDecoder()
	if err != nil {
		return err
	}
	out := make(IdentifierList, 0, ld.Size())
	for ld.HasNext() {
		p, err := ld.DecodeNullableIdentifier()
		if err != nil {
			return err
		}
		if p == nil {
			out = append(out, nil)
			continue
		}
		out = append(out, NewIdentifier(*p))
	}
	*l = out
	return nil
}

// AttributeList is a list of nullable attributes of mixed types.
type AttributeList []Attribute

func (l *AttributeList) ShortForm() ShortForm { return AttributeListShortForm }

func (l *AttributeList) Len() int { return len(*l) }

func (l *AttributeList) Subset(indexes []int) Sequence {
	out := make(AttributeList, 0, len(indexes))
	for _, i := range indexes {
		out = append(out, (*l)[i])
	}
	return &out
}

func (l *AttributeList) Encode(enc Encoder) error {
	le, err := enc.ListEncoder(len(*l))
	if err != nil {
		return err
	}
	for _, a := range *l {
		if err := le.EncodeAttribute(a); err != nil {
			return err
		}
	}
	return nil
}

func (l *AttributeList) Decode(dec Decoder) error {
	ld, err := dec.ListDecoder()
	if err != nil {
		return err
	}
	out := make(AttributeList, 0, ld.Size())
	for ld.HasNext() {
		a, err := ld.DecodeAttribute()
		if err != nil {
			return err
		}
		out = append(out, a)
	}
	*l = out
	return nil
}
