package pngstream

// Metadata gives typed access to a chunk list.
type Metadata struct {
	Chunks []*Chunk
}

func findChunk[T ChunkData](chunks []*Chunk) T {
	var zero T
	for _, c := range chunks {
		if d, ok := c.Data.(T); ok {
			return d
		}
	}
	return zero
}

// ByID returns the loaded chunks with the given id.
func (m Metadata) ByID(id string) []*Chunk {
	var out []*Chunk
	for _, c := range m.Chunks {
		if c.ID == id && !c.Skipped {
			out = append(out, c)
		}
	}
	return out
}

func (m Metadata) Palette() *PaletteChunk { return findChunk[*PaletteChunk](m.Chunks) }

func (m Metadata) Transparency() *TransparencyChunk {
	return findChunk[*TransparencyChunk](m.Chunks)
}

func (m Metadata) Gamma() *GammaChunk { return findChunk[*GammaChunk](m.Chunks) }

func (m Metadata) Physical() *PhysicalChunk { return findChunk[*PhysicalChunk](m.Chunks) }

func (m Metadata) Time() *TimeChunk { return findChunk[*TimeChunk](m.Chunks) }

func (m Metadata) ICCProfile() *ICCProfileChunk { return findChunk[*ICCProfileChunk](m.Chunks) }

func (m Metadata) Background() *BackgroundChunk { return findChunk[*BackgroundChunk](m.Chunks) }

// Texts collects all textual chunks. A keyword seen twice keeps its first
// value.
func (m Metadata) Texts() map[string]string {
	out := map[string]string{}
	for _, c := range m.Chunks {
		if t, ok := c.Data.(TextualChunk); ok {
			if _, dup := out[t.Key()]; !dup {
				out[t.Key()] = t.Value()
			}
		}
	}
	return out
}

// Text returns the value of one keyword.
func (m Metadata) Text(key string) (string, bool) {
	v, ok := m.Texts()[key]
	return v, ok
}
