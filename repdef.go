package lance

import (
	"github.com/slyrx/lance/arrow"
	"github.com/slyrx/lance/format"
)

// Repetition and definition levels flatten a nested array into one item
// stream plus a compacted leaf value stream. Each nesting level of the type
// is a layer; list layers contribute a repetition level, and layers that can
// truncate a lineage (null items, null or empty lists) consume definition
// states.
//
// Repetition follows the usual convention: a row opens at 0, and an item
// with rep >= L continues the current element of the list at depth L. A list
// element's items inherit the element-opening rep on their first item only.
// Fixed size lists consume no repetition level; their 2nd and later slots
// reuse the enclosing level, so when one sits above every list layer a zero
// can also continue a row. Row boundaries are therefore derived by walking
// the layer plan, never by scanning for zeroes.
//
// Definition states are assigned outermost first. With cumBase(i) the sum of
// the states of the layers above layer i, an item with def in
// [cumBase(i), cumBase(i)+states(i)) is truncated at layer i; def == maxDef
// means the lineage reaches a defined leaf value. For NULL_AND_EMPTY_LIST
// the first state marks a null list and the second an empty one.
//
// Layers that cannot truncate are omitted from the serialized form, with two
// exceptions. List layers are always kept, trivial ones as ALL_VALID_LIST,
// because their repetition level is needed to delimit elements. And within a
// run of item layers between two list layers, if any layer is tracked they
// all are, trivial ones as ALL_VALID_ITEM, so the decoder can map layers
// back onto nesting levels without guessing.

type planKind int

const (
	planLeaf planKind = iota
	planStruct
	planFSL
	planList
)

type planNode struct {
	kind  planKind
	typ   arrow.DataType
	layer format.RepDefLayer // Unspecified when the layer is omitted

	cumBase uint16
	states  uint16

	listLevel uint16 // lists: 1-based depth among list layers
	contRep   uint16 // rep continuing the innermost enclosing list
	dim       int    // fixed size lists
}

type repDefPlan struct {
	nodes  []planNode
	layers []format.RepDefLayer
	maxRep uint16
	maxDef uint16

	// failOf[def] is the plan level truncating at that definition value.
	failOf []int
}

func (p *repDefPlan) finish() {
	var cum, lists uint16
	for i := range p.nodes {
		n := &p.nodes[i]
		n.contRep = lists
		if n.kind == planList {
			lists++
			n.listLevel = lists
		}
		n.cumBase = cum
		n.states = uint16(n.layer.DefStates())
		cum += n.states
		if n.layer != format.RepDefUnspecified {
			p.layers = append(p.layers, n.layer)
		}
	}
	p.maxRep = lists
	p.maxDef = cum

	p.failOf = make([]int, cum)
	for i := range p.nodes {
		n := &p.nodes[i]
		for s := uint16(0); s < n.states; s++ {
			p.failOf[n.cumBase+s] = i
		}
	}
}

// failLevel returns the plan level a definition value truncates at, or -1
// for a fully defined item.
func (p *repDefPlan) failLevel(def uint16) (int, error) {
	if def == p.maxDef {
		return -1, nil
	}
	if def > p.maxDef {
		return 0, corruptedf("definition level %d exceeds maximum %d", def, p.maxDef)
	}
	return p.failOf[def], nil
}

func (p *repDefPlan) leafType() arrow.DataType {
	return p.nodes[len(p.nodes)-1].typ
}

// buildPlan derives the layer plan from an array, tracking only the layers
// whose data can truncate.
func buildPlan(a *arrow.Array) (*repDefPlan, error) {
	p := new(repDefPlan)
	gapStart := 0
	cur := a
	for {
		node := planNode{typ: cur.Type}
		switch cur.Type.Kind {
		case arrow.List:
			node.kind = planList
			hasNull := cur.NullCount() > 0
			hasEmpty := false
			for i := 0; i < cur.Len; i++ {
				if !cur.IsNull(i) && cur.Offsets[i] == cur.Offsets[i+1] {
					hasEmpty = true
					break
				}
			}
			switch {
			case hasNull && hasEmpty:
				node.layer = format.NullAndEmptyList
			case hasNull:
				node.layer = format.NullableList
			case hasEmpty:
				node.layer = format.EmptyableList
			default:
				node.layer = format.AllValidList
			}
			p.nodes = append(p.nodes, node)
			closeItemGap(p.nodes[gapStart : len(p.nodes)-1])
			gapStart = len(p.nodes)
			cur = &cur.Children[0]

		case arrow.FixedSizeList:
			node.kind = planFSL
			node.dim = cur.Type.Size
			if cur.NullCount() > 0 {
				node.layer = format.NullableItem
			}
			p.nodes = append(p.nodes, node)
			cur = &cur.Children[0]

		case arrow.Struct:
			if len(cur.Type.Fields) != 1 {
				return nil, errUnsupportedf("struct of %d fields in a single column page", len(cur.Type.Fields))
			}
			node.kind = planStruct
			if cur.NullCount() > 0 {
				node.layer = format.NullableItem
			}
			p.nodes = append(p.nodes, node)
			cur = &cur.Children[0]

		default:
			node.kind = planLeaf
			if cur.NullCount() > 0 {
				node.layer = format.NullableItem
			}
			p.nodes = append(p.nodes, node)
			closeItemGap(p.nodes[gapStart:])
			p.finish()
			return p, nil
		}
	}
}

// closeItemGap applies the all-or-nothing rule to a run of item layers: when
// any of them is tracked, the trivial ones are serialized as ALL_VALID_ITEM.
func closeItemGap(nodes []planNode) {
	tracked := false
	for i := range nodes {
		if nodes[i].layer != format.RepDefUnspecified {
			tracked = true
			break
		}
	}
	if !tracked {
		return
	}
	for i := range nodes {
		if nodes[i].layer == format.RepDefUnspecified {
			nodes[i].layer = format.AllValidItem
		}
	}
}

// planFromLayers reconstructs the plan from the type and the serialized
// layer list.
func planFromLayers(typ arrow.DataType, layers []format.RepDefLayer) (*repDefPlan, error) {
	p := new(repDefPlan)
	next := 0
	gapStart := 0
	cur := typ
	for {
		node := planNode{typ: cur}
		switch cur.Kind {
		case arrow.List:
			node.kind = planList
			p.nodes = append(p.nodes, node)
			if err := assignItemGap(p.nodes[gapStart:len(p.nodes)-1], layers, &next); err != nil {
				return nil, err
			}
			if next >= len(layers) || !layers[next].IsList() {
				return nil, corruptedf("list nesting level has no list layer")
			}
			p.nodes[len(p.nodes)-1].layer = layers[next]
			next++
			gapStart = len(p.nodes)
			cur = *cur.Elem

		case arrow.FixedSizeList:
			node.kind = planFSL
			node.dim = cur.Size
			p.nodes = append(p.nodes, node)
			cur = *cur.Elem

		case arrow.Struct:
			if len(cur.Fields) != 1 {
				return nil, errUnsupportedf("struct of %d fields in a single column page", len(cur.Fields))
			}
			node.kind = planStruct
			p.nodes = append(p.nodes, node)
			cur = cur.Fields[0].Type

		default:
			node.kind = planLeaf
			p.nodes = append(p.nodes, node)
			if err := assignItemGap(p.nodes[gapStart:], layers, &next); err != nil {
				return nil, err
			}
			if next != len(layers) {
				return nil, corruptedf("%d layers serialized, %d consumed by the type", len(layers), next)
			}
			p.finish()
			return p, nil
		}
	}
}

// assignItemGap maps the item layers preceding the cursor onto a run of item
// nesting levels. A gap is serialized in full or not at all.
func assignItemGap(nodes []planNode, layers []format.RepDefLayer, next *int) (err error) {
	avail := 0
	for *next+avail < len(layers) && !layers[*next+avail].IsList() {
		avail++
	}
	itemLevels := 0
	for i := range nodes {
		if nodes[i].kind != planList {
			itemLevels++
		}
	}
	switch avail {
	case 0:
		return nil
	case itemLevels:
		for i := range nodes {
			if nodes[i].kind == planList {
				continue
			}
			l := layers[*next]
			if l != format.AllValidItem && l != format.NullableItem {
				return corruptedf("item nesting level described by %s layer", l)
			}
			nodes[i].layer = l
			*next++
		}
		return nil
	default:
		return corruptedf("%d item layers serialized for a run of %d item nesting levels", avail, itemLevels)
	}
}

// flatArray is the flattened form of a nested array.
type flatArray struct {
	plan    *repDefPlan
	rep     []uint16
	def     []uint16
	leaf    arrow.Array // defined leaf values only
	numRows int
}

func (f *flatArray) numItems() int { return len(f.def) }

// visible reports whether the item is materialized by layouts that store a
// value slot per item: everything except placeholders of null or empty
// lists and null fixed size list rows.
func (f *flatArray) visible(def uint16) bool {
	level, err := f.plan.failLevel(def)
	if err != nil || level < 0 {
		return true
	}
	return f.plan.nodes[level].kind == planStruct || f.plan.nodes[level].kind == planLeaf
}

func (f *flatArray) numVisible() int {
	n := 0
	for _, d := range f.def {
		if f.visible(d) {
			n++
		}
	}
	return n
}

// flattenArray walks the array once, emitting one (rep, def) pair per item
// and compacting the defined leaf values.
func flattenArray(a *arrow.Array) (*flatArray, error) {
	plan, err := buildPlan(a)
	if err != nil {
		return nil, err
	}
	f := &flattener{flat: flatArray{plan: plan, numRows: a.Len}}
	for i := 0; i < a.Len; i++ {
		f.walk(0, a, i, 0)
	}
	f.flat.leaf = gatherLeaf(plan.leafType(), f.leafSrc, f.leafIdx)
	return &f.flat, nil
}

type flattener struct {
	flat    flatArray
	leafSrc *arrow.Array
	leafIdx []int
}

func (f *flattener) emit(rep, def uint16) {
	f.flat.rep = append(f.flat.rep, rep)
	f.flat.def = append(f.flat.def, def)
}

func (f *flattener) walk(level int, a *arrow.Array, idx int, rep uint16) {
	node := &f.flat.plan.nodes[level]
	switch node.kind {
	case planLeaf:
		if a.IsNull(idx) {
			f.emit(rep, node.cumBase)
			return
		}
		f.emit(rep, f.flat.plan.maxDef)
		f.leafSrc = a
		f.leafIdx = append(f.leafIdx, idx)

	case planStruct:
		if a.IsNull(idx) {
			f.emit(rep, node.cumBase)
			return
		}
		f.walk(level+1, &a.Children[0], idx, rep)

	case planFSL:
		if a.IsNull(idx) {
			f.emit(rep, node.cumBase)
			return
		}
		for j := 0; j < node.dim; j++ {
			r := rep
			if j > 0 {
				r = node.contRep
			}
			f.walk(level+1, &a.Children[0], idx*node.dim+j, r)
		}

	case planList:
		if a.IsNull(idx) {
			f.emit(rep, node.cumBase)
			return
		}
		lo, hi := a.Offsets[idx], a.Offsets[idx+1]
		if lo == hi {
			empty := uint16(0)
			if node.layer == format.NullAndEmptyList {
				empty = 1
			}
			f.emit(rep, node.cumBase+empty)
			return
		}
		for j := lo; j < hi; j++ {
			r := rep
			if j > lo {
				r = node.listLevel
			}
			f.walk(level+1, &a.Children[0], int(j), r)
		}
	}
}

func gatherLeaf(typ arrow.DataType, src *arrow.Array, idx []int) arrow.Array {
	out := arrow.Array{Type: typ, Len: len(idx)}
	if typ.Variable() {
		out.Offsets = make([]int32, 1, len(idx)+1)
		for _, i := range idx {
			out.Values = append(out.Values, src.BytesValue(i)...)
			out.Offsets = append(out.Offsets, int32(len(out.Values)))
		}
		return out
	}
	w := typ.FixedWidth()
	out.Values = make([]byte, 0, len(idx)*w)
	for _, i := range idx {
		out.Values = append(out.Values, src.Values[i*w:(i+1)*w]...)
	}
	return out
}

// unflattenArray rebuilds the nested array from its flattened form. The
// leaf array holds defined values only, in item order.
func unflattenArray(typ arrow.DataType, layers []format.RepDefLayer, rep, def []uint16, leaf arrow.Array, numRows int) (arrow.Array, error) {
	plan, err := planFromLayers(typ, layers)
	if err != nil {
		return arrow.Array{}, err
	}
	u := &unflattener{
		plan:     plan,
		rep:      rep,
		def:      def,
		leaf:     &leaf,
		builders: make([]levelBuilder, len(plan.nodes)),
	}
	numItems := len(def)
	if plan.maxRep > 0 {
		numItems = len(rep)
		if len(def) > 0 && len(def) != numItems {
			return arrow.Array{}, corruptedf("%d repetition levels next to %d definition levels", len(rep), len(def))
		}
	}
	u.numItems = numItems
	for row := 0; row < numRows; row++ {
		if plan.maxRep > 0 {
			if u.pos >= numItems {
				return arrow.Array{}, corruptedf("item stream ends inside row %d of %d", row, numRows)
			}
			if rep[u.pos] != 0 {
				return arrow.Array{}, corruptedf("row %d starts with repetition level %d", row, rep[u.pos])
			}
		}
		if err := u.consume(0); err != nil {
			return arrow.Array{}, err
		}
	}
	if u.pos != numItems {
		return arrow.Array{}, corruptedf("%d items serialized, %d consumed by %d rows", numItems, u.pos, numRows)
	}
	if u.leafPos != leaf.Len {
		return arrow.Array{}, corruptedf("%d leaf values stored, %d referenced", leaf.Len, u.leafPos)
	}
	out := u.assemble(0)
	return out, out.Check()
}

type levelBuilder struct {
	n       int
	valid   []bool
	data    []byte
	offsets []int32
	lengths []int32
}

type unflattener struct {
	plan     *repDefPlan
	rep, def []uint16
	leaf     *arrow.Array
	builders []levelBuilder

	pos      int
	leafPos  int
	numItems int
}

func (u *unflattener) defAt(pos int) uint16 {
	if len(u.def) == 0 {
		return u.plan.maxDef
	}
	return u.def[pos]
}

// consume reads the items of one element at the given nesting level.
func (u *unflattener) consume(level int) error {
	if u.pos >= u.numItems {
		return corruptedf("item stream ends inside an element at level %d", level)
	}
	node := &u.plan.nodes[level]
	fail, err := u.plan.failLevel(u.defAt(u.pos))
	if err != nil {
		return err
	}
	if fail >= 0 && fail < level {
		return corruptedf("definition level truncates level %d while decoding level %d", fail, level)
	}
	b := &u.builders[level]

	switch node.kind {
	case planLeaf:
		u.pos++
		if fail == level {
			u.appendLeaf(b, false)
			return nil
		}
		if fail >= 0 {
			return corruptedf("definition level truncates below the leaf")
		}
		u.appendLeaf(b, true)
		u.leafPos++
		return nil

	case planStruct:
		if fail == level {
			u.pos++
			b.append(false)
			u.appendNullSlots(level+1, 1)
			return nil
		}
		b.append(true)
		return u.consume(level + 1)

	case planFSL:
		if fail == level {
			u.pos++
			b.append(false)
			u.appendNullSlots(level+1, node.dim)
			return nil
		}
		b.append(true)
		for j := 0; j < node.dim; j++ {
			if err := u.consume(level + 1); err != nil {
				return err
			}
		}
		return nil

	default: // planList
		if fail == level {
			u.pos++
			isNull := u.defAt(u.pos-1) == node.cumBase && node.layer != format.EmptyableList
			b.append(!isNull)
			b.lengths = append(b.lengths, 0)
			return nil
		}
		count := int32(1)
		if err := u.consume(level + 1); err != nil {
			return err
		}
		for u.pos < u.numItems && u.rep[u.pos] >= node.listLevel {
			if err := u.consume(level + 1); err != nil {
				return err
			}
			count++
		}
		b.append(true)
		b.lengths = append(b.lengths, count)
		return nil
	}
}

func (b *levelBuilder) append(valid bool) {
	b.valid = append(b.valid, valid)
	b.n++
}

func (u *unflattener) appendLeaf(b *levelBuilder, valid bool) {
	typ := u.plan.leafType()
	b.append(valid)
	if typ.Variable() {
		if b.offsets == nil {
			b.offsets = make([]int32, 1)
		}
		if valid {
			b.data = append(b.data, u.leaf.BytesValue(u.leafPos)...)
		}
		b.offsets = append(b.offsets, int32(len(b.data)))
		return
	}
	w := typ.FixedWidth()
	if valid {
		b.data = append(b.data, u.leaf.Values[u.leafPos*w:(u.leafPos+1)*w]...)
	} else {
		b.data = append(b.data, make([]byte, w)...)
	}
}

// appendNullSlots pads the levels below a null struct or fixed size list row
// with the slots the arrow layout requires.
func (u *unflattener) appendNullSlots(level, count int) {
	node := &u.plan.nodes[level]
	b := &u.builders[level]
	switch node.kind {
	case planLeaf:
		for i := 0; i < count; i++ {
			u.appendLeafPad(b)
		}
	case planStruct:
		for i := 0; i < count; i++ {
			b.append(false)
		}
		u.appendNullSlots(level+1, count)
	case planFSL:
		for i := 0; i < count; i++ {
			b.append(false)
		}
		u.appendNullSlots(level+1, count*node.dim)
	default: // planList
		for i := 0; i < count; i++ {
			b.append(false)
			b.lengths = append(b.lengths, 0)
		}
	}
}

func (u *unflattener) appendLeafPad(b *levelBuilder) {
	typ := u.plan.leafType()
	b.append(false)
	if typ.Variable() {
		if b.offsets == nil {
			b.offsets = make([]int32, 1)
		}
		b.offsets = append(b.offsets, int32(len(b.data)))
		return
	}
	b.data = append(b.data, make([]byte, typ.FixedWidth())...)
}

func (u *unflattener) assemble(level int) arrow.Array {
	node := &u.plan.nodes[level]
	b := &u.builders[level]
	out := arrow.Array{
		Type:     node.typ,
		Len:      b.n,
		Validity: arrow.MakeBitmap(b.valid),
	}
	switch node.kind {
	case planLeaf:
		out.Values = b.data
		if node.typ.Variable() {
			out.Offsets = b.offsets
			if out.Offsets == nil {
				out.Offsets = make([]int32, 1)
			}
		}
	case planStruct, planFSL:
		out.Children = []arrow.Array{u.assemble(level + 1)}
	default: // planList
		out.Offsets = make([]int32, b.n+1)
		for i, length := range b.lengths {
			out.Offsets[i+1] = out.Offsets[i] + length
		}
		out.Children = []arrow.Array{u.assemble(level + 1)}
	}
	return out
}
