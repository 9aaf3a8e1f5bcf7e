package cowtree

// checkValue derives a 16-bit integrity value from v using a fixed mixing
// function (the finalizer step of a 64-bit avalanche hash, truncated).
// Three of these, XOR'ed together over chunkId/offset/pageLength, form a
// page's frame checksum.
func checkValue(v uint64) uint16 {
	v ^= v >> 33
	v *= 0xff51afd7ed558ccd
	v ^= v >> 33
	v *= 0xc4ceb9fe1a85ec53
	v ^= v >> 33
	return uint16(v)
}

// writeCycle bundles the chunk a write-out cycle is targeting and the
// shared scratch buffer pages append themselves to, so that each page's
// on-disk offset is the chunk's pre-cycle tail plus its position in buf.
type writeCycle struct {
	chunk      *Chunk
	baseOffset uint32
	buf        *WriteBuffer
	store      *Store
}

// write serializes p into wc.buf and assigns p.position. It
// returns the byte offset (within wc.buf) of the child-position table,
// just past the type byte, so writeUnsavedRecursive can patch it once
// children are assigned positions. write raises ErrInternal if p already
// has a position.
func (p *Page) write(wc *writeCycle) (childTableOffset int, err error) {
	if !p.position.IsZero() {
		return 0, ErrInternal
	}
	if err := p.assertTotalCount(); err != nil {
		return 0, err
	}
	if _, err := p.getMemory(); err != nil {
		return 0, err
	}

	buf := wc.buf
	startOffsetInBuf := buf.Position()
	startOffset := wc.baseOffset + uint32(startOffsetInBuf)

	lengthOffset := buf.Position()
	buf.PutInt32(0) // page_length placeholder, patched at the end

	checkOffset := buf.Position()
	buf.PutInt16(0) // checksum placeholder, patched at the end

	buf.PutVarUint(p.owner.ID())
	buf.PutVarUint(uint64(len(p.keys)))

	typeOffset := buf.Position()
	var typeByte byte
	if !p.IsLeaf() {
		typeByte |= pageTypeInternalBit
	}
	buf.PutByte(typeByte)

	childTableOffset = buf.Position()

	if !p.IsLeaf() {
		for _, c := range p.children {
			buf.PutInt64(int64(c.Position))
		}
		for _, c := range p.children {
			buf.PutVarUint(uint64(c.Count))
		}
	}

	payload, err := p.encodePayload()
	if err != nil {
		return 0, err
	}

	if wc.store.getCompressionLevel() > 0 && len(payload) > 16 {
		if compressed, addedLen, high, ok := tryCompress(wc.store, payload); ok {
			typeByte |= pageTypeCompressedBit
			if high {
				typeByte |= pageTypeHighCompressorBit
			}
			buf.PutByteAt(typeOffset, typeByte)
			buf.PutVarUint(uint64(addedLen))
			buf.PutBytes(compressed)
		} else {
			buf.PutBytes(payload)
		}
	} else {
		buf.PutBytes(payload)
	}

	pageLength := buf.Position() - startOffsetInBuf
	buf.PutInt32At(lengthOffset, int32(pageLength))

	check := checkValue(uint64(wc.chunk.ID)) ^ checkValue(uint64(startOffset)) ^ checkValue(uint64(pageLength))
	buf.PutInt16At(checkOffset, int16(check))

	lengthClass := lengthClassFor(pageLength)
	pos := NewPagePosition(wc.chunk.ID, startOffset, lengthClass, !p.IsLeaf())
	p.position = pos

	wc.chunk.recordWrite(pageLength)
	wc.store.unassignUnsavedPage(p.memory)
	wc.store.cachePage(pos, p, p.memory)
	if !p.IsLeaf() {
		wc.store.cachePage(pos, p, p.memory) // internal pages cached twice to bias LIRS-style promotion
	}

	if p.removedInMemory.Load() {
		p.owner.RemovePage(pos, p.memory)
	}

	return childTableOffset, nil
}

// encodePayload writes keys (and, for leaves, values) through the owning
// map's codecs into a fresh scratch buffer.
func (p *Page) encodePayload() ([]byte, error) {
	payloadBuf := NewWriteBuffer(256)
	keyCodec := p.owner.KeyCodec()
	for _, k := range p.keys {
		if err := keyCodec.Write(payloadBuf, k); err != nil {
			return nil, err
		}
	}
	if p.IsLeaf() {
		valueCodec := p.owner.ValueCodec()
		for _, v := range p.values {
			if err := valueCodec.Write(payloadBuf, v); err != nil {
				return nil, err
			}
		}
	}
	return payloadBuf.Bytes(), nil
}

// ReadPage parses a page at pos from fs into a fresh Page bound to owner:
// resolve length, clamp, verify checksum and map id, parse child tables,
// decompress, materialize keys/values, recompute totalCount and memory.
func ReadPage(fs *FileStore, pos PagePosition, owner Map) (*Page, error) {
	length := maxLengthForClass(pos.LengthClass())
	prefetch, err := fs.readFully(pos.Offset(), length)
	if err != nil {
		return nil, err
	}

	if pos.LengthClass() == PageLarge {
		if len(prefetch) < 4 {
			return nil, ErrFileCorrupt
		}
		trueLength := int(NewReadBuffer(prefetch).Int32())
		if trueLength < 4 {
			return nil, ErrFileCorrupt
		}
		prefetch, err = fs.readFully(pos.Offset(), trueLength)
		if err != nil {
			return nil, err
		}
	}

	if len(prefetch) < 4 {
		return nil, ErrFileCorrupt
	}

	rb := NewReadBuffer(prefetch)
	pageLength := rb.Int32()
	if pageLength < 4 || int(pageLength) > len(prefetch) {
		return nil, ErrFileCorrupt
	}
	rb.buf = rb.buf[:pageLength] // clamp: the payload ends at the page's own length

	check := rb.Int16()
	wantCheck := checkValue(pos.ChunkID()) ^ checkValue(uint64(pos.Offset())) ^ checkValue(uint64(pageLength))
	if uint16(check) != wantCheck {
		return nil, ErrFileCorrupt
	}

	mapID := rb.VarUint()
	if mapID != owner.ID() {
		return nil, ErrFileCorrupt
	}

	keyCount := int(rb.VarUint())
	typeByte := rb.Byte()
	isInternal := typeByte&pageTypeInternalBit != 0
	compressed := typeByte&pageTypeCompressedBit != 0
	highComp := typeByte&pageTypeHighCompressorBit != 0

	p := &Page{owner: owner, position: pos}

	var childPositions []PagePosition
	var childCounts []int
	if isInternal {
		childPositions = make([]PagePosition, keyCount+1)
		for i := range childPositions {
			childPositions[i] = PagePosition(rb.Int64())
		}
		childCounts = make([]int, keyCount+1)
		for i := range childCounts {
			childCounts[i] = int(rb.VarUint())
		}
	}

	payload := rb.Bytes(rb.Remaining())
	if compressed {
		addedLenBuf := NewReadBuffer(payload)
		addedLen := int(addedLenBuf.VarUint())
		compressedBytes := payload[addedLenBuf.Position():]
		expandedLen := len(compressedBytes) + addedLen

		var comp Compressor
		if store := owner.Store(); store != nil {
			if highComp {
				comp = store.getCompressorHigh()
			} else {
				comp = store.getCompressorFast()
			}
		}
		if comp == nil {
			return nil, ErrFileCorrupt
		}
		expanded, err := comp.Expand(compressedBytes, expandedLen)
		if err != nil {
			return nil, ErrFileCorrupt
		}
		payload = expanded
	}

	payloadBuf := NewReadBuffer(payload)
	keyCodec := owner.KeyCodec()
	p.keys = make([]interface{}, keyCount)
	for i := 0; i < keyCount; i++ {
		k, err := keyCodec.Read(payloadBuf)
		if err != nil {
			return nil, ErrFileCorrupt
		}
		p.keys[i] = k
	}

	if isInternal {
		p.children = make([]PageReference, keyCount+1)
		for i := range p.children {
			p.children[i] = PageReference{Position: childPositions[i], Count: childCounts[i]}
			p.totalCount += childCounts[i]
		}
	} else {
		valueCodec := owner.ValueCodec()
		p.values = make([]interface{}, keyCount)
		for i := 0; i < keyCount; i++ {
			v, err := valueCodec.Read(payloadBuf)
			if err != nil {
				return nil, ErrFileCorrupt
			}
			p.values[i] = v
		}
		p.totalCount = keyCount
	}

	p.memory = p.recalculateMemory()
	return p, nil
}

// ReadPageChildren parses only the header and, for internal pages, the
// child-position table, returning nil for leaves. This is the strict
// subset of ReadPage the garbage collector uses to avoid materializing
// keys/values it does not need.
func ReadPageChildren(fs *FileStore, pos PagePosition) (*PageChildren, error) {
	if !pos.IsInternal() {
		return nil, nil
	}

	length := maxLengthForClass(pos.LengthClass())
	prefetch, err := fs.readFully(pos.Offset(), length)
	if err != nil {
		return nil, err
	}

	if pos.LengthClass() == PageLarge {
		if len(prefetch) < 4 {
			return nil, ErrFileCorrupt
		}
		trueLength := int(NewReadBuffer(prefetch).Int32())
		prefetch, err = fs.readFully(pos.Offset(), trueLength)
		if err != nil {
			return nil, err
		}
	}

	rb := NewReadBuffer(prefetch)
	pageLength := rb.Int32()
	if pageLength < 4 || int(pageLength) > len(prefetch) {
		return nil, ErrFileCorrupt
	}
	rb.Int16() // checksum, not re-verified for this header-only path
	rb.VarUint() // map_id
	keyCount := int(rb.VarUint())
	rb.Byte() // type byte, already known internal from the position

	children := make([]PagePosition, keyCount+1)
	for i := range children {
		children[i] = PagePosition(rb.Int64())
	}

	return &PageChildren{Position: pos, ChildPositions: children}, nil
}
