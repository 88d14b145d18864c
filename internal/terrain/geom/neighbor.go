package geom

// Neighbor addresses one of the eight horizontal neighbors of a chunk, or
// the chunk itself. Neighbors are laid out row-major over (dx, dz) in
// {-1,0,1}x{-1,0,1}.
type Neighbor int

const (
	NeighborNegXNegZ Neighbor = iota
	NeighborNegX
	NeighborNegXPosZ
	NeighborNegZ
	NeighborCenter
	NeighborPosZ
	NeighborPosXNegZ
	NeighborPosX
	NeighborPosXPosZ

	NumNeighbors = 9
)

func (n Neighbor) Valid() bool { return n >= 0 && n < NumNeighbors }

// Step returns the neighbor's position in chunk units.
func (n Neighbor) Step() (dx, dz int) {
	return int(n)/3 - 1, int(n)%3 - 1
}

// Offset returns the displacement of the neighbor's minimum corner from the
// center chunk's minimum corner.
func (n Neighbor) Offset() Vec3i {
	dx, dz := n.Step()
	return Vec3i{dx * ChunkSizeX, 0, dz * ChunkSizeZ}
}

// NeighborAt is the inverse of Step. ok is false if either step is outside [-1,1].
func NeighborAt(dx, dz int) (Neighbor, bool) {
	if dx < -1 || dx > 1 || dz < -1 || dz > 1 {
		return 0, false
	}
	return Neighbor((dx+1)*3 + (dz + 1)), true
}

// Combined neighborhood extents, in the center chunk's local space.
var (
	CombinedMinP = Vec3i{-ChunkSizeX, 0, -ChunkSizeZ}
	CombinedMaxP = Vec3i{2 * ChunkSizeX, ChunkSizeY, 2 * ChunkSizeZ}
)

// CombinedDimensions is the shape of a buffer holding a chunk and all eight
// horizontal neighbors.
func CombinedDimensions() Vec3i { return CombinedMaxP.Sub(CombinedMinP) }

// ForEachNeighbor visits every neighbor including the center, in index order.
func ForEachNeighbor(fn func(n Neighbor)) {
	for i := Neighbor(0); i < NumNeighbors; i++ {
		fn(i)
	}
}
