/*
Package patch builds the credential patch image that is flashed into a device at a known address.

The image holds four credential values, each in its own fixed slot of 2048 bytes:

	offset  slot        source file
	0       endpoint    endpoint.txt
	2048    thing_name  thing_name.txt
	4096    wifi_ssid   wifi_ssid.txt
	6144    wifi_pass   wifi_pass.txt

Every value is copied verbatim from its source file (no trimming, no encoding) and followed by
exactly one NUL byte. The rest of a slot is zero-filled. The last slot is not padded, so the
image is 6144 + len(wifi_pass) + 1 bytes long.

There is no header, no version and no checksum; the firmware reads the values straight from the
slot offsets. A value may therefore use at most 2047 bytes. Larger values are rejected with
ErrCredentialTooLarge instead of spilling into the next slot.

Images are written to a temporary file next to the destination and renamed into place, so an
aborted build never leaves a half-written patch.bin behind.
*/
package patch
