package phcore

// Version is the engine release version.
const Version = "0.3.0"

// ProfileRelease identifies the PH Core implementation guide release the
// embedded artifact set was authored against.
const ProfileRelease = "0.1.0"

// CanonicalBase is the canonical URL prefix under which the PH Core
// conformance artifacts are published.
const CanonicalBase = "http://localhost:5072/ph-core/fhir"
