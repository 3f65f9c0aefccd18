package mkvtag

// Element IDs of interest. IDs retain their VINT marker bits, so an
// ID read off the wire compares directly against these constants.
const (
	idEBMLHeader             = 0x1A45DFA3
	idEBMLVersion            = 0x4286
	idEBMLReadVersion        = 0x42F7
	idEBMLMaxIDLength        = 0x42F2
	idEBMLMaxSizeLength      = 0x42F3
	idEBMLDocType            = 0x4282
	idEBMLDocTypeVersion     = 0x4287
	idEBMLDocTypeReadVersion = 0x4285

	idSegment = 0x18538067

	idSeekHead = 0x114D9B74
	idSeek     = 0x4DBB
	idSeekID   = 0x53AB
	idSeekPos  = 0x53AC

	idInfo        = 0x1549A966
	idTracks      = 0x1654AE6B
	idCluster     = 0x1F43B675
	idCues        = 0x1C53BB6B
	idChapters    = 0x1043A770
	idTags        = 0x1254C367
	idAttachments = 0x1941A469

	idVoid = 0xEC

	idTag                = 0x7373
	idTargets            = 0x63C0
	idTargetTypeValue    = 0x68CA
	idTargetType         = 0x63CA
	idTagTrackUID        = 0x63C5
	idTagEditionUID      = 0x63C9
	idTagChapterUID      = 0x63C4
	idTagAttachmentUID   = 0x63C6
	idSimpleTag          = 0x67C8
	idTagName            = 0x45A3
	idTagLanguage        = 0x447A
	idTagLanguageBCP47   = 0x447B
	idTagDefault         = 0x4484
	idTagString          = 0x4487
	idTagBinary          = 0x4485
)

// topLevelIDs is the set of Segment children the navigator records the
// offset of during the prologue scan. Cluster is handled
// separately (it terminates the scan rather than being recorded).
var topLevelIDs = map[uint32]bool{
	idSeekHead:    true,
	idInfo:        true,
	idTracks:      true,
	idCues:        true,
	idTags:        true,
	idChapters:    true,
	idAttachments: true,
}

// TargetType is the integer classifying a Tag's scope.
type TargetType int

// Defined target types, SHOT..COLLECTION.
const (
	TargetShot       TargetType = 10
	TargetScene      TargetType = 20
	TargetChapter    TargetType = 30
	TargetPart       TargetType = 40
	TargetAlbum      TargetType = 50
	TargetEdition    TargetType = 60
	TargetCollection TargetType = 70
)

// DefaultTargetType is the target type used when a Targets descriptor
// omits TargetTypeValue, and the target type the convenience setters
// (SetTagString, RemoveTag) operate on.
const DefaultTargetType = TargetAlbum
